package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"videotube/apperror"
	"videotube/config"
)

// MinioUploader stores media in an S3-compatible bucket.
type MinioUploader struct {
	client    *minio.Client
	bucket    string
	folder    string
	publicURL string
}

// NewMinioUploader connects and makes sure the bucket exists.
func NewMinioUploader(ctx context.Context, cfg config.MinioConfig, folder string) (*MinioUploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio config is missing required fields (endpoint, bucket)")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + cfg.Bucket
	}

	return &MinioUploader{client: client, bucket: cfg.Bucket, folder: folder, publicURL: publicURL}, nil
}

func (m *MinioUploader) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, nil
	}

	contentType := detectContentType(localPath)
	key := objectKey(m.folder, localPath)
	info, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, apperror.NewUpload("failed to upload object to minio", err)
	}

	return &Asset{
		RemoteID:     key,
		URL:          m.publicURL + "/" + key,
		Bytes:        info.Size,
		ResourceType: resourceTypeOf(contentType),
	}, nil
}

func (m *MinioUploader) Type() string {
	return "minio"
}

func (m *MinioUploader) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}
