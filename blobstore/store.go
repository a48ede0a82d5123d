// Package blobstore provides named byte blobs for persisting small documents
// such as the altitude cache.
//
// Implementations must be safe for concurrent use.
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in memory, for tests
//   - minio.Store: MinIO and other S3-compatible object storage
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// A BlobStore stores whole blobs by name.
type BlobStore interface {
	// Get returns the contents of the blob name.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the contents of the blob name with data. Readers observe
	// either the old or the new contents, never a partial write.
	Put(ctx context.Context, name string, data []byte) error
}
