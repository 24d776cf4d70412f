package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore stores objects under root/<bucket>/<key> on the local
// filesystem. It exists for development and testing runs without AWS
// access.
type FSStore struct {
	root string
}

// NewFS creates an FSStore rooted at the given directory.
func NewFS(root string) *FSStore {
	return &FSStore{root: root}
}

func (f *FSStore) path(bucket, key string) string {
	return filepath.Join(f.root, bucket, filepath.FromSlash(key))
}

// Fetch reads the object's backing file in full.
func (f *FSStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read local object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Write stores body in the object's backing file, creating parent
// directories as needed.
func (f *FSStore) Write(ctx context.Context, bucket, key string, body io.Reader) error {
	path := f.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create local object directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create local object %s/%s: %w", bucket, key, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("failed to write local object %s/%s: %w", bucket, key, err)
	}
	return nil
}
