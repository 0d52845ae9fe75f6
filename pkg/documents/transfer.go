package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/storage"
)

const (
	// defaultMaxAttempts bounds the direct upload retries
	defaultMaxAttempts = 3
	// directRetryBackoff is the constant wait between direct retries
	directRetryBackoff = time.Second
	// DownloadURLTTL is the lifetime of a signed download link
	DownloadURLTTL = 60 * time.Second
	// uploadURLTTL is the lifetime of a presigned upload link
	uploadURLTTL = 5 * time.Minute
)

// Pipeline performs uploads with retry and the presigned fallback ladder.
//
// The ladder exists because the backing store's access policies can be
// stricter for direct writes than for URLs presigned by a privileged key:
// a permission failure on the direct path would never succeed on retry,
// so it switches strategy instead. Transient failures retry the direct
// path with a constant backoff. Once the pipeline has switched to the
// presigned ladder it never returns to direct, and the last observed
// error is what the caller sees on total failure.
type Pipeline struct {
	store       storage.ObjectStore
	client      *http.Client
	logger      *observability.Logger
	metrics     *observability.Metrics
	maxAttempts int

	// sleep is replaceable in tests
	sleep func(time.Duration)
}

// NewPipeline builds the transfer pipeline
func NewPipeline(objectStore storage.ObjectStore, logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Pipeline{
		store:       objectStore,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		metrics:     metrics,
		maxAttempts: defaultMaxAttempts,
		sleep:       time.Sleep,
	}
}

// Upload writes content to the bucket, retrying transient direct failures
// and falling back to presigned PUT URLs on permission failures
func (p *Pipeline) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.store.PutObject(ctx, bucket, key, bytes.NewReader(content), contentType)
		if err == nil {
			p.observeAttempt("direct", "success")
			return nil
		}
		lastErr = err
		p.observeAttempt("direct", "error")

		if storage.IsPermissionError(err) {
			p.logger.WithError(err).WithField("key", key).
				Warn("Direct upload hit a permission error, switching to presigned ladder")
			return p.uploadPresigned(ctx, bucket, key, content, contentType, lastErr)
		}

		p.logger.WithError(err).WithField("key", key).WithField("attempt", attempt).
			Warn("Direct upload failed")
		if attempt < p.maxAttempts {
			p.sleep(directRetryBackoff)
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// uploadPresigned walks the presigned ladder: service credentials first,
// caller credentials as the final fallback
func (p *Pipeline) uploadPresigned(ctx context.Context, bucket, key string, content []byte, contentType string, lastErr error) error {
	for _, scope := range []storage.CredentialScope{storage.ScopeService, storage.ScopeCaller} {
		mode := "presigned_" + string(scope)

		url, err := p.store.PresignUpload(ctx, bucket, key, scope, uploadURLTTL)
		if err != nil {
			lastErr = err
			p.observeAttempt(mode, "error")
			p.logger.WithError(err).WithField("scope", string(scope)).
				Warn("Failed to presign upload URL")
			continue
		}

		if err := p.putToURL(ctx, url, content, contentType); err != nil {
			lastErr = err
			p.observeAttempt(mode, "error")
			p.logger.WithError(err).WithField("scope", string(scope)).
				Warn("Presigned upload failed")
			continue
		}

		p.observeAttempt(mode, "success")
		return nil
	}

	return fmt.Errorf("upload failed on every path: %w", lastErr)
}

func (p *Pipeline) putToURL(ctx context.Context, url string, content []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to build presigned request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(content))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("presigned PUT failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("presigned PUT returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// SignDownload issues a 60-second signed URL for a private object. There
// are no permanent public URLs for documents.
func (p *Pipeline) SignDownload(ctx context.Context, bucket, key string) (*SignedDownload, error) {
	url, err := p.store.PresignDownload(ctx, bucket, key, DownloadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download: %w", err)
	}
	return &SignedDownload{
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(DownloadURLTTL),
	}, nil
}

func (p *Pipeline) observeAttempt(mode, outcome string) {
	if p.metrics != nil {
		p.metrics.UploadAttempts.WithLabelValues(mode, outcome).Inc()
	}
}
