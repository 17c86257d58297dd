// Package objectstore keeps the published facility catalog in S3-compatible
// storage so every API replica loads the same snapshot.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/samirrijal/carparkfinder/internal/adapters/csvcatalog"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// Options configures a CatalogStore.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Object    string
}

// CatalogStore reads and writes the catalog CSV object. It implements
// ports.CatalogSource.
type CatalogStore struct {
	client *minio.Client
	bucket string
	object string
	logger *slog.Logger
}

// New creates a MinIO-backed store.
func New(opts Options, logger *slog.Logger) (*CatalogStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" || opts.Object == "" {
		return nil, fmt.Errorf("minio endpoint, bucket and object are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogStore{client: client, bucket: opts.Bucket, object: opts.Object, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *CatalogStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// Ping checks that the bucket is reachable.
func (s *CatalogStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Load downloads and parses the catalog object.
func (s *CatalogStore) Load(ctx context.Context) ([]domain.FacilityLocation, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.object, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("catalog object %s/%s does not exist", s.bucket, s.object)
		}
		return nil, fmt.Errorf("stat %s/%s: %w", s.bucket, s.object, err)
	}
	return csvcatalog.Parse(obj, s.logger)
}

// Upload replaces the catalog object with items.
func (s *CatalogStore) Upload(ctx context.Context, items []domain.FacilityLocation) error {
	var buf bytes.Buffer
	if err := csvcatalog.Write(&buf, items); err != nil {
		return fmt.Errorf("render catalog: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(buf.Bytes()), int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, s.object, err)
	}
	s.logger.Info("catalog uploaded", "bucket", s.bucket, "object", s.object, "rows", len(items))
	return nil
}
