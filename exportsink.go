package webtoonquiz

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const csvContentType = "text/csv; charset=utf-8"

// ExportSink stores a finished export file and returns where it went.
type ExportSink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// LocalExportSink writes export files into a directory.
type LocalExportSink struct {
	Dir string
}

func (s *LocalExportSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	dst := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export %s: %w", dst, err)
	}
	return dst, nil
}

// MinioExportSink uploads export files to an S3 compatible bucket.
type MinioExportSink struct {
	client *minio.Client
	bucket string
}

// NewMinioExportSink connects to endpoint and makes sure bucket exists.
func NewMinioExportSink(ctx context.Context, cfg ExportConfig) (*MinioExportSink, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		Log.Sugar().Infof("Created export bucket %s", cfg.MinioBucket)
	}

	return &MinioExportSink{client: client, bucket: cfg.MinioBucket}, nil
}

func (s *MinioExportSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: csvContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export %s: %w", name, err)
	}
	return "/" + s.bucket + "/" + name, nil
}

// NewExportSink builds the sink named in cfg.
func NewExportSink(ctx context.Context, cfg ExportConfig) (ExportSink, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return &LocalExportSink{Dir: cfg.Dir}, nil
	case "minio":
		return NewMinioExportSink(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown export type %q", cfg.Type)
}
