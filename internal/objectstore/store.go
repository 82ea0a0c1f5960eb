package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

// Store is path-addressed durable blob storage with public URLs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
	// Fetch resolves a URL produced by PublicURL (or any http URL) to bytes.
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	Close() error
}

type Config struct {
	BucketURL     string
	PublicBaseURL string
	FetchTimeout  time.Duration
}

type BlobStore struct {
	bucket     *blob.Bucket
	publicBase string
	http       *http.Client
	logger     *slog.Logger
}

// Open opens the bucket named by cfg.BucketURL (file://, mem://, s3://, gs://).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*BlobStore, error) {
	if cfg.BucketURL == "" {
		return nil, errors.New("bucket url is required")
	}
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.BucketURL, err)
	}
	ok, err := bucket.IsAccessible(ctx)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("failed to check bucket accessibility %s: %w", cfg.BucketURL, err)
	}
	if !ok {
		_ = bucket.Close()
		return nil, fmt.Errorf("bucket %s is not accessible", cfg.BucketURL)
	}
	s := NewBlobStore(bucket, cfg.PublicBaseURL, logger)
	if cfg.FetchTimeout > 0 {
		s.http.Timeout = cfg.FetchTimeout
	}
	return s, nil
}

func NewBlobStore(bucket *blob.Bucket, publicBaseURL string, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		s.logger.Error("objectstore.put.failed", "key", key, "error", err)
		return common.StorageWriteError(key, err)
	}
	s.logger.Info("objectstore.put.ok",
		"key", key, "bytes", len(data), "content_type", contentType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("object %s: %w", key, common.ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return b, nil
}

// Attributes returns the stored content type and size of key.
func (s *BlobStore) Attributes(ctx context.Context, key string) (contentType string, size int64, err error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", 0, fmt.Errorf("object %s: %w", key, common.ErrNotFound)
		}
		return "", 0, err
	}
	return attrs.ContentType, attrs.Size, nil
}

// PublicURL joins the configured base with an escaped key.
func (s *BlobStore) PublicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.publicBase + "/" + strings.Join(parts, "/")
}

// KeyFromURL inverts PublicURL. ok is false for foreign URLs.
func (s *BlobStore) KeyFromURL(rawURL string) (string, bool) {
	if s.publicBase == "" || !strings.HasPrefix(rawURL, s.publicBase+"/") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, s.publicBase+"/"))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func (s *BlobStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := s.KeyFromURL(rawURL); ok {
		return s.Get(ctx, key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Warn("objectstore.fetch.body_close_error", "error", err)
		}
	}(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &FetchStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

// FetchStatusError is a non-2xx answer while fetching a file URL.
type FetchStatusError struct {
	URL        string
	StatusCode int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}
