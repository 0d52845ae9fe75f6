package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arbiterhq/casedesk/pkg/config"
)

// S3Store implements ObjectStore against any S3-compatible endpoint.
// It holds two clients: the service client carries the privileged
// credentials used for administration, downloads and the first presign
// fallback; the caller client carries the lower-privilege credentials
// used for direct uploads and the final presign fallback.
type S3Store struct {
	service *s3.Client
	caller  *s3.Client

	servicePresign *s3.PresignClient
	callerPresign  *s3.PresignClient
}

// NewS3Store builds the store from configuration. Returns ErrNotConfigured
// when no endpoint or bucket is set.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Store, error) {
	if cfg.Endpoint == "" && cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	caller, err := newS3Client(ctx, cfg, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build caller client: %w", err)
	}

	service := caller
	if cfg.ServiceAccessKey != "" && cfg.ServiceSecretKey != "" {
		service, err = newS3Client(ctx, cfg, cfg.ServiceAccessKey, cfg.ServiceSecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to build service client: %w", err)
		}
	}

	return &S3Store{
		service:        service,
		caller:         caller,
		servicePresign: s3.NewPresignClient(service),
		callerPresign:  s3.NewPresignClient(caller),
	}, nil
}

func newS3Client(ctx context.Context, cfg config.ObjectStoreConfig, accessKey, secretKey string) (*s3.Client, error) {
	var awsCfg aws.Config
	var err error

	if accessKey != "" && secretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				accessKey,
				secretKey,
				"",
			)),
		)
	} else {
		// fall through to the default chain (env vars, IAM role)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// EnsureBucket creates the bucket when it does not already exist
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.service.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.service.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !IsBucketExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ListBuckets lists the buckets visible to the service credentials
func (s *S3Store) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	result, err := s.service.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	buckets := make([]BucketInfo, 0, len(result.Buckets))
	for _, b := range result.Buckets {
		info := BucketInfo{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			info.CreatedAt = *b.CreationDate
		}
		buckets = append(buckets, info)
	}
	return buckets, nil
}

// PutObject writes content through the caller-scoped client
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, content io.Reader, contentType string) error {
	_, err := s.caller.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// GetObject reads an object through the service client
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	result, err := s.service.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

// DeleteObject removes an object through the service client
func (s *S3Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.service.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ObjectExists reports whether the object is present
func (s *S3Store) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.service.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// PresignDownload issues a time-boxed signed GET URL with the service
// credentials
func (s *S3Store) PresignDownload(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	req, err := s.servicePresign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}

// PresignUpload issues a signed PUT URL with the selected credential scope
func (s *S3Store) PresignUpload(ctx context.Context, bucket, key string, scope CredentialScope, expires time.Duration) (string, error) {
	presigner := s.servicePresign
	if scope == ScopeCaller {
		presigner = s.callerPresign
	}

	req, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return req.URL, nil
}
