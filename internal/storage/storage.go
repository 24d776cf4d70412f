// Package storage provides the object store collaborators used by the
// relay: an S3 backend for production and a local-directory backend for
// development runs.
package storage

import (
	"context"
	"io"
)

// Fetcher reads a stored object.
type Fetcher interface {
	// Fetch returns the full contents of the object at (bucket, key).
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Writer stores an object.
type Writer interface {
	// Write stores body as the object at (bucket, key), replacing any
	// existing object.
	Write(ctx context.Context, bucket, key string, body io.Reader) error
}

// Store combines read and write access to object storage.
type Store interface {
	Fetcher
	Writer
}
