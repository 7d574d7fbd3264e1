// Package storage defines the object store used for gallery images and
// selects a concrete driver from configuration.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/gcs"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/minio"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/s3"
	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/supabase"
)

// ObjectStore is a bucket-bound key to bytes store.
type ObjectStore interface {
	// Put writes body at path and returns the object's public URL.
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error)
	// Remove deletes paths. Paths that do not exist are not an error.
	Remove(ctx context.Context, paths []string) error
	// List returns every object path under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// New builds the driver named by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, gcp config.GCPConfig, logg *logger.Logger) (ObjectStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		store ObjectStore
		err   error
	)
	switch driver {
	case config.StorageDriverSupabase:
		store, err = supabase.New(cfg.Supabase.URL, cfg.Supabase.ServiceKey, cfg.Bucket)
	case config.StorageDriverS3:
		store, err = s3.New(ctx, s3.Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Bucket:          cfg.Bucket,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
	case config.StorageDriverMinIO:
		store, err = minio.New(ctx, minio.Options{
			Endpoint:      cfg.MinIO.Endpoint,
			AccessKey:     cfg.MinIO.AccessKey,
			SecretKey:     cfg.MinIO.SecretKey,
			UseSSL:        cfg.MinIO.UseSSL,
			CreateBucket:  cfg.MinIO.CreateBucket,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	case config.StorageDriverGCS:
		store, err = gcs.New(ctx, gcs.Options{
			Bucket:                 cfg.Bucket,
			PublicBaseURL:          cfg.PublicBaseURL,
			CredentialsJSON:        gcp.CredentialsJSON,
			ApplicationCredentials: gcp.ApplicationCredentials,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", driver, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"driver": driver, "bucket": cfg.Bucket}), "storage client initialized")
	}
	return store, nil
}

// ObjectPath builds the storage key of one gallery image.
func ObjectPath(ownerID, slug, fileName string) string {
	return path.Join(ownerID, slug, fileName)
}

// GalleryPrefix is the folder holding every image of one gallery.
func GalleryPrefix(ownerID, slug string) string {
	return path.Join(ownerID, slug) + "/"
}
