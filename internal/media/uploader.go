// Package media stores account and group images in an S3-compatible bucket.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"loom/api/internal/util"
)

// Config carries the bucket connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the URL prefix served to clients. When empty the
	// endpoint itself is used.
	PublicBaseURL string
}

// Uploader writes uploaded images to object storage and hands back the
// public URL stored on accounts and groups.
type Uploader struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewUploader connects to the object store and ensures the bucket exists.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &Uploader{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// UploadImage stores one image and returns its public URL. The object name
// is random, so uploads never overwrite each other.
func (u *Uploader) UploadImage(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}

	objectName := fmt.Sprintf("images/%d/%s%s", time.Now().Year(), util.NewID("img"), ext)
	_, err := u.client.PutObject(ctx, u.bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", u.baseURL, u.bucket, objectName), nil
}
