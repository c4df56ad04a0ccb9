// store/minio.go
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/config"
)

// PhotoStore keeps captured and reference photos in a MinIO bucket and
// hands out stable object URLs for the rows that reference them.
type PhotoStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
	config config.MinIOConfig
}

// NewPhotoStore creates the client and ensures the bucket exists.
func NewPhotoStore(cfg config.MinIOConfig) (*PhotoStore, error) {
	// Defaults
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &PhotoStore{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.L().Named("photo-store"),
		config: cfg,
	}

	// Ensure bucket exists (or create)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		store.logger.Info("Created MinIO bucket", zap.String("bucket", cfg.Bucket))
	}

	return store, nil
}

// PutPhoto uploads a JPEG under key and returns its object URL.
func (s *PhotoStore) PutPhoto(ctx context.Context, key string, jpeg []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	reader := bytes.NewReader(jpeg)

	// Fresh backoff per operation
	newBackoff := func() backoff.BackOff {
		ebo := backoff.NewExponentialBackOff()
		ebo.InitialInterval = 200 * time.Millisecond
		ebo.Reset()
		return backoff.WithMaxRetries(ebo, 3)
	}

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			if _, err := reader.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(fmt.Errorf("seek reset failed: %w", err))
			}
		}

		info, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(jpeg)), minio.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		if err != nil {
			return err
		}

		s.logger.Debug("Photo uploaded",
			zap.String("key", key),
			zap.Int64("size", info.Size),
			zap.String("etag", info.ETag))

		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackoff(), ctx)); err != nil {
		return "", fmt.Errorf("failed to upload photo %q: %w", key, err)
	}

	return s.URL(key), nil
}

// GetPhoto downloads an object's bytes.
func (s *PhotoStore) GetPhoto(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get photo %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read photo %q: %w", key, err)
	}

	return data, nil
}

// URL returns the stable object URL for a key.
func (s *PhotoStore) URL(key string) string {
	scheme := "http"
	if s.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.config.Endpoint, s.bucket, key)
}

// KeyFromURL reports whether rawURL points into this store's bucket
// and, if so, returns the object key.
func (s *PhotoStore) KeyFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Host != s.config.Endpoint {
		return "", false
	}
	prefix := "/" + s.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(u.Path, prefix), true
}

// HealthCheck verifies the bucket is accessible.
func (s *PhotoStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("object store health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
