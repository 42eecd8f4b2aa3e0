package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"studko/config"
)

// Presigner hands out time-limited download links for stored objects.
type Presigner interface {
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(cfg config.StorageConfig) (*S3Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Storage{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Storage) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	key = ObjectKey(key, s.bucket)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	params := url.Values{}
	params.Set("response-content-disposition", "attachment")

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return presigned.String(), nil
}

// ObjectKey normalizes what notes.file_url holds: either a bare key, a
// bucket-prefixed key, or a full Supabase storage URL.
func ObjectKey(fileURL, bucket string) string {
	key := strings.TrimSpace(fileURL)
	if u, err := url.Parse(key); err == nil && u.Scheme != "" {
		key = u.Path
	}
	key = strings.TrimPrefix(key, "/")
	for _, prefix := range []string{
		"storage/v1/object/public/",
		"storage/v1/object/sign/",
		"storage/v1/object/",
	} {
		key = strings.TrimPrefix(key, prefix)
	}
	if bucket != "" {
		key = strings.TrimPrefix(key, bucket+"/")
	}
	return key
}
