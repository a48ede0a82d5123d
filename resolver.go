package altitude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twpayne/go-altitude/blobstore"
)

// A Resolver resolves the altitudes of coordinates, consulting a persistent
// cache before the remote service.
//
// Calls on the same Resolver are serialized so that concurrent callers do not
// lose each other's cache updates. Resolvers in different processes sharing a
// cache are not coordinated.
type Resolver struct {
	mutex      sync.Mutex
	cacheStore CacheStore
	transport  Transport
	logger     *slog.Logger
	cacheDir   string
}

// A ResolverOption sets an option on a Resolver.
type ResolverOption func(*Resolver)

// NewResolver returns a new Resolver with the given options. By default, the
// cache is stored in [DefaultCacheDir] and altitudes are fetched from
// [DefaultBaseURL].
func NewResolver(options ...ResolverOption) (*Resolver, error) {
	r := &Resolver{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(r)
	}

	if r.cacheStore == nil {
		cacheDir := r.cacheDir
		if cacheDir == "" {
			var err error
			cacheDir, err = DefaultCacheDir()
			if err != nil {
				return nil, fmt.Errorf("cache dir: %w", err)
			}
		}
		r.cacheStore = NewBlobCacheStore(
			blobstore.NewLocalStore(cacheDir),
			WithCacheLogger(r.logger),
		)
	}
	if r.transport == nil {
		r.transport = NewOpenElevationClient()
	}
	return r, nil
}

// WithCacheDir stores the cache in a local directory. It is ignored if
// WithCacheStore is also given.
func WithCacheDir(cacheDir string) ResolverOption {
	return func(r *Resolver) {
		r.cacheDir = cacheDir
	}
}

func WithCacheStore(cacheStore CacheStore) ResolverOption {
	return func(r *Resolver) {
		r.cacheStore = cacheStore
	}
}

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithTransport(transport Transport) ResolverOption {
	return func(r *Resolver) {
		r.transport = transport
	}
}

// Resolve returns requested with altitudes set, in the same order. The
// latitude and longitude of each returned coordinate are exactly those
// requested.
//
// Coordinates found in the cache are not sent to the remote service. Newly
// fetched altitudes are added to the cache, which is saved at most once.
//
// If the remote service fails, Resolve returns a *TransportError or
// *ProtocolError, no coordinates, and the cache is unchanged. If only saving
// the cache fails, Resolve returns the resolved coordinates together with a
// *PersistenceError.
func (r *Resolver) Resolve(ctx context.Context, requested []Coordinate) ([]Coordinate, error) {
	if len(requested) == 0 {
		return []Coordinate{}, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	records := r.cacheStore.Load(ctx)

	// Partition requested into hits and misses, remembering where each miss
	// came from.
	altitudes := make([]float64, len(requested))
	var misses []Coordinate
	var missIndexes []int
	for index, coord := range requested {
		if record, ok := records.Find(coord); ok {
			altitudes[index] = record.altitude
			continue
		}
		misses = append(misses, coord)
		missIndexes = append(missIndexes, index)
	}
	cacheHits.Add(float64(len(requested) - len(misses)))
	cacheMisses.Add(float64(len(misses)))
	r.logger.DebugContext(ctx, "partitioned coordinates",
		"requested", len(requested),
		"hits", len(requested)-len(misses),
		"misses", len(misses),
	)

	var persistenceErr error
	if len(misses) > 0 {
		fetched, err := r.fetch(ctx, misses)
		if err != nil {
			return nil, err
		}

		added := 0
		for missIndex, record := range fetched {
			altitudes[missIndexes[missIndex]] = record.altitude
			if records.Add(record) {
				added++
			}
		}
		cacheRecordsAdded.Add(float64(added))

		if added > 0 {
			persistenceErr = r.save(ctx, records)
		}
	}

	response := make([]Coordinate, len(requested))
	for index, coord := range requested {
		response[index] = coord.WithAltitude(altitudes[index])
	}
	return response, persistenceErr
}

// ResolveOne returns coord with its altitude set. Errors are as for Resolve.
func (r *Resolver) ResolveOne(ctx context.Context, coord Coordinate) (Coordinate, error) {
	resolved, err := r.Resolve(ctx, []Coordinate{coord})
	if len(resolved) != 1 {
		return Coordinate{}, err
	}
	return resolved[0], err
}

// AddAltitude sets the altitude of each element of coords in place. If the
// altitudes cannot be resolved then coords is left unchanged. A
// *PersistenceError is returned after coords has been updated.
func (r *Resolver) AddAltitude(ctx context.Context, coords []Coordinate) error {
	resolved, err := r.Resolve(ctx, coords)
	if resolved == nil {
		return err
	}
	copy(coords, resolved)
	return err
}

func (r *Resolver) fetch(ctx context.Context, misses []Coordinate) ([]Coordinate, error) {
	fetched, err := r.transport.Fetch(ctx, misses)
	if err != nil {
		r.logger.DebugContext(ctx, "fetch failed",
			"count", len(misses),
			"error", err,
		)
		return nil, err
	}
	// Transports other than OpenElevationClient may not check the count.
	if len(fetched) != len(misses) {
		return nil, &ProtocolError{
			Reason:   fmt.Sprintf("expected %d results, got %d", len(misses), len(fetched)),
			Expected: len(misses),
			Actual:   len(fetched),
		}
	}
	r.logger.DebugContext(ctx, "fetch completed",
		"count", len(fetched),
	)
	return fetched, nil
}

func (r *Resolver) save(ctx context.Context, records *RecordSet) error {
	err := r.cacheStore.Save(ctx, records)
	if err == nil {
		cacheSaves.WithLabelValues("ok").Inc()
		r.logger.DebugContext(ctx, "cache saved",
			"records", records.Len(),
		)
		return nil
	}

	cacheSaves.WithLabelValues("error").Inc()
	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) {
		persistenceErr = &PersistenceError{Op: "save", cause: err}
	}
	r.logger.DebugContext(ctx, "cache save failed",
		"records", records.Len(),
		"error", persistenceErr,
	)
	return persistenceErr
}
