// Package source resolves asset source locators to local files.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// ErrSourceMissing is returned when a local source path does not exist.
var ErrSourceMissing = errors.New("source file does not exist")

// Fetcher resolves one asset's source locator to a local file path.
// Plain paths are returned as-is; bucket URLs are downloaded to a temp
// directory.
type Fetcher interface {
	Fetch(ctx context.Context, assetID, locator string) (string, error)
	Close() error
}

// BlobFetcher downloads remote sources via gocloud blob buckets and
// passes local paths through.
type BlobFetcher struct {
	tempDir string
	log     *slog.Logger

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
}

// NewFetcher creates a fetcher that stages remote sources under tempDir.
func NewFetcher(tempDir string) (*BlobFetcher, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", tempDir, err)
	}
	return &BlobFetcher{
		tempDir: tempDir,
		log:     slog.With("component", "source"),
		buckets: make(map[string]*blob.Bucket),
	}, nil
}

// Fetch implements Fetcher.
func (f *BlobFetcher) Fetch(ctx context.Context, assetID, locator string) (string, error) {
	if !strings.Contains(locator, "://") {
		if _, err := os.Stat(locator); err != nil {
			return "", fmt.Errorf("%w: %s", ErrSourceMissing, locator)
		}
		return locator, nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("parse source locator %s: %w", locator, err)
	}

	bucket, err := f.bucket(ctx, u)
	if err != nil {
		return "", err
	}

	key := strings.TrimPrefix(u.Path, "/")
	localPath := filepath.Join(f.tempDir, assetID+filepath.Ext(key))

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", locator, err)
	}
	defer r.Close()

	w, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("download %s: %w", locator, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("flush %s: %w", localPath, err)
	}

	f.log.Debug("downloaded source", "asset_id", assetID, "locator", locator, "path", localPath)
	return localPath, nil
}

// bucket returns an open bucket for the locator's root, reusing handles
// across assets.
func (f *BlobFetcher) bucket(ctx context.Context, u *url.URL) (*blob.Bucket, error) {
	root := u.Scheme + "://" + u.Host
	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := f.buckets[root]; ok {
		return b, nil
	}
	b, err := blob.OpenBucket(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", root, err)
	}
	f.buckets[root] = b
	return b, nil
}

// Close releases all open bucket handles.
func (f *BlobFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for root, b := range f.buckets {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bucket %s: %w", root, err)
		}
	}
	f.buckets = make(map[string]*blob.Bucket)
	return firstErr
}
