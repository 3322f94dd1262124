// Package storage abstracts publication of optimized asset artifacts.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store writes optimized artifacts to a publication backend.
type Store interface {
	// Write stores data under key.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether key is already published.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config configures the publication backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewStore creates a publication backend based on configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewBlobStore(fmt.Sprintf("gs://%s", cfg.GCSBucket), cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewBlobStore(s3URL(cfg), cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown publication backend: %s", cfg.Backend)
	}
}

// PublishDir uploads every regular file under localDir to the store,
// keyed as "<keyPrefix>/<relative path>". Existing keys are overwritten.
func PublishDir(ctx context.Context, store Store, localDir, keyPrefix string) error {
	return filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		key := keyPrefix + "/" + filepath.ToSlash(rel)
		if err := store.Write(ctx, key, data); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		return nil
	})
}

func s3URL(cfg Config) string {
	u := fmt.Sprintf("s3://%s", cfg.S3Bucket)
	var params []string
	if cfg.S3Region != "" {
		params = append(params, "region="+cfg.S3Region)
	}
	if cfg.S3Endpoint != "" {
		params = append(params, "endpoint="+cfg.S3Endpoint, "s3ForcePathStyle=true")
	}
	if len(params) > 0 {
		u += "?" + strings.Join(params, "&")
	}
	return u
}
