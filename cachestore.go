package altitude

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/twpayne/go-altitude/blobstore"
)

// DefaultCacheName is the default name of the cache blob.
const DefaultCacheName = "coordinate-altitude.json"

// A CacheStore persists the set of resolved coordinates.
type CacheStore interface {
	// Load returns the persisted records. It never fails: a missing or
	// unreadable cache is an empty cache.
	Load(ctx context.Context) *RecordSet
	// Save replaces the persisted records with records.
	Save(ctx context.Context, records *RecordSet) error
}

// A BlobCacheStore is a CacheStore that keeps the records as a single JSON
// array in a blob store.
type BlobCacheStore struct {
	blobStore blobstore.BlobStore
	name      string
	logger    *slog.Logger
}

// A BlobCacheStoreOption sets an option on a BlobCacheStore.
type BlobCacheStoreOption func(*BlobCacheStore)

// NewBlobCacheStore returns a new BlobCacheStore backed by blobStore.
func NewBlobCacheStore(blobStore blobstore.BlobStore, options ...BlobCacheStoreOption) *BlobCacheStore {
	s := &BlobCacheStore{
		blobStore: blobStore,
		name:      DefaultCacheName,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// WithCacheName sets the name of the cache blob.
func WithCacheName(name string) BlobCacheStoreOption {
	return func(s *BlobCacheStore) {
		s.name = name
	}
}

// WithCacheLogger sets the logger used to report load failures.
func WithCacheLogger(logger *slog.Logger) BlobCacheStoreOption {
	return func(s *BlobCacheStore) {
		s.logger = logger
	}
}

// Load returns the records in the cache blob, or an empty set if the blob is
// missing, unreadable, or corrupt.
func (s *BlobCacheStore) Load(ctx context.Context) *RecordSet {
	data, err := s.blobStore.Get(ctx, s.name)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return NewRecordSet()
	case err != nil:
		s.loadFailed(ctx, err)
		return NewRecordSet()
	}

	records := NewRecordSet()
	if err := json.Unmarshal(data, records); err != nil {
		s.loadFailed(ctx, err)
		return NewRecordSet()
	}
	return records
}

// Save writes records to the cache blob, replacing its previous contents.
func (s *BlobCacheStore) Save(ctx context.Context, records *RecordSet) error {
	data, err := json.Marshal(records)
	if err != nil {
		return &PersistenceError{Op: "save", Name: s.name, cause: err}
	}
	if err := s.blobStore.Put(ctx, s.name, data); err != nil {
		return &PersistenceError{Op: "save", Name: s.name, cause: err}
	}
	return nil
}

func (s *BlobCacheStore) loadFailed(ctx context.Context, err error) {
	cacheLoadFailures.Inc()
	s.logger.WarnContext(ctx, "cache load failed, using empty cache",
		"name", s.name,
		"error", &PersistenceError{Op: "load", Name: s.name, cause: err},
	)
}

// DefaultCacheDir returns the default directory for the local cache.
func DefaultCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, "coordinate-altitude"), nil
}
