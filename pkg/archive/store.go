// Package archive persists sealed compliance reports to a filesystem
// directory or an object store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("archive: object not found")

// Store writes and reads archived objects by key.
type Store interface {
	// Put stores data under key and returns the object URI.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// ReportKey is the object key of a report generated at the given time.
func ReportKey(reportID string, at time.Time) string {
	return path.Join("reports", at.UTC().Format("2006/01/02"), reportID+".json")
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("archive: invalid key %q", key)
	}
	return nil
}

// FileStore keeps objects under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates baseDir if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G301: archive directory is shared with report readers
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: abs}, nil
}

// Put writes data to a temp file and renames it into place.
func (s *FileStore) Put(_ context.Context, key string, data []byte) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	dst := filepath.Join(s.baseDir, filepath.FromSlash(key))
	//nolint:gosec // G301
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	tmp := dst + ".tmp"
	//nolint:gosec // G306: reports are not secret
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("failed to commit object: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}

// Get reads the object stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Open builds a Store from a URI:
//
//	file:///var/lib/router/archive   or a bare path
//	s3://bucket/prefix?region=eu-central-1&endpoint=http://minio:9000
//	gs://bucket/prefix               (requires the gcp build tag)
func Open(ctx context.Context, uri string) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("archive: bad uri %q: %w", uri, err)
	}
	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if u.Scheme == "" {
			dir = uri
		}
		if dir == "" {
			return nil, fmt.Errorf("archive: %q has no directory", uri)
		}
		return NewFileStore(dir)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("archive: %q has no bucket", uri)
		}
		region := u.Query().Get("region")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   u.Host,
			Region:   region,
			Endpoint: u.Query().Get("endpoint"),
			Prefix:   prefixOf(u),
		})
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("archive: %q has no bucket", uri)
		}
		return openGCS(ctx, u.Host, prefixOf(u))
	default:
		return nil, fmt.Errorf("archive: unsupported scheme %q", u.Scheme)
	}
}

func prefixOf(u *url.URL) string {
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
