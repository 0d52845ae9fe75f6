package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// CredentialScope selects which credentials sign a presigned upload URL
type CredentialScope string

const (
	// ScopeService signs with the privileged service credentials
	ScopeService CredentialScope = "service"
	// ScopeCaller signs with the caller-scoped credentials
	ScopeCaller CredentialScope = "caller"
)

// ErrNotConfigured is returned when the object store has no endpoint configured
var ErrNotConfigured = errors.New("object store is not configured")

// ErrObjectNotFound is returned when a requested object does not exist
var ErrObjectNotFound = errors.New("object not found")

// BucketInfo describes a bucket visible to the service credentials
type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectStore is the object-storage surface used by the document pipeline
type ObjectStore interface {
	// EnsureBucket creates the bucket when it does not already exist.
	// An existing bucket is not an error.
	EnsureBucket(ctx context.Context, bucket string) error

	// ListBuckets lists the buckets visible to the service credentials
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// PutObject writes content through the caller-scoped client so that
	// bucket access policies apply to direct uploads
	PutObject(ctx context.Context, bucket, key string, content io.Reader, contentType string) error

	// GetObject reads an object through the service client
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// DeleteObject removes an object through the service client
	DeleteObject(ctx context.Context, bucket, key string) error

	// ObjectExists reports whether the object is present
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)

	// PresignDownload issues a time-boxed signed GET URL
	PresignDownload(ctx context.Context, bucket, key string, expires time.Duration) (string, error)

	// PresignUpload issues a signed PUT URL using the selected credential scope
	PresignUpload(ctx context.Context, bucket, key string, scope CredentialScope, expires time.Duration) (string, error)
}

// IsPermissionError reports whether an upload failure is a policy or
// permission class error. These are never retried on the direct path;
// the pipeline switches to the presigned ladder instead. AccessDenied is
// the S3 wording for the same class.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "policy") ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "accessdenied") ||
		strings.Contains(msg, "access denied")
}

// IsNotFoundError reports whether the error indicates a missing object
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}

// IsBucketExistsError reports whether bucket creation failed only because
// the bucket already exists
func IsBucketExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BucketAlreadyExists") || strings.Contains(msg, "BucketAlreadyOwnedByYou")
}
