//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func openGCS(ctx context.Context, bucket, prefix string) (Store, error) {
	return NewGCSStore(ctx, bucket, prefix)
}

// Put uploads data as a JSON object.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	objKey := s.prefix + key
	w := s.client.Bucket(s.bucket).Object(objKey).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objKey), nil
}

// Get downloads the object stored under key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(s.prefix + key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read failed for %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
