package altitude_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/alecthomas/assert/v2"

	altitude "github.com/twpayne/go-altitude"
	"github.com/twpayne/go-altitude/blobstore"
)

// testTransport is a Transport that records its calls and reports the
// altitudes in altitudes, or 100 plus the latitude for other locations.
type testTransport struct {
	mutex     sync.Mutex
	calls     [][]altitude.Coordinate
	altitudes map[string]float64
	err       error
	drop      bool
}

func (t *testTransport) Fetch(ctx context.Context, coords []altitude.Coordinate) ([]altitude.Coordinate, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.calls = append(t.calls, coords)
	if t.err != nil {
		return nil, t.err
	}
	result := make([]altitude.Coordinate, len(coords))
	for i, coord := range coords {
		key := altitude.EncodeLocations([]altitude.Coordinate{coord})
		if a, ok := t.altitudes[key]; ok {
			result[i] = coord.WithAltitude(a)
		} else {
			result[i] = coord.WithAltitude(100 + coord.Latitude())
		}
	}
	if t.drop {
		result = result[:len(result)-1]
	}
	return result, nil
}

func (t *testTransport) Calls() [][]altitude.Coordinate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.calls
}

// testCacheStore is a CacheStore that counts calls.
type testCacheStore struct {
	records *altitude.RecordSet
	saveErr error
	loads   int
	saves   int
}

func (s *testCacheStore) Load(context.Context) *altitude.RecordSet {
	s.loads++
	if s.records == nil {
		return altitude.NewRecordSet()
	}
	return altitude.NewRecordSet(s.records.Records()...)
}

func (s *testCacheStore) Save(_ context.Context, records *altitude.RecordSet) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = altitude.NewRecordSet(records.Records()...)
	return nil
}

func newTestResolver(t *testing.T, cacheStore altitude.CacheStore, transport altitude.Transport) *altitude.Resolver {
	t.Helper()
	resolver, err := altitude.NewResolver(
		altitude.WithCacheStore(cacheStore),
		altitude.WithTransport(transport),
	)
	assert.NoError(t, err)
	return resolver
}

func TestResolver_Resolve(t *testing.T) {
	c := altitude.MustNewCoordinate

	for _, tc := range []struct {
		name            string
		cached          []altitude.Coordinate
		altitudes       map[string]float64
		requested       []altitude.Coordinate
		expected        []altitude.Coordinate
		expectedFetches [][]altitude.Coordinate
		expectedCache   []altitude.Coordinate
		expectedSaves   int
	}{
		{
			name:            "empty_cache",
			altitudes:       map[string]float64{"10,-10": 21},
			requested:       []altitude.Coordinate{c(10, -10)},
			expected:        []altitude.Coordinate{c(10, -10).WithAltitude(21)},
			expectedFetches: [][]altitude.Coordinate{{c(10, -10)}},
			expectedCache:   []altitude.Coordinate{c(10, -10).WithAltitude(21)},
			expectedSaves:   1,
		},
		{
			name:          "rounded_cache_hit",
			cached:        []altitude.Coordinate{c(20.345300, 28.000000).WithAltitude(32)},
			requested:     []altitude.Coordinate{c(20.3453, 28)},
			expected:      []altitude.Coordinate{c(20.3453, 28).WithAltitude(32)},
			expectedCache: []altitude.Coordinate{c(20.3453, 28).WithAltitude(32)},
		},
		{
			name:          "hit_beyond_sixth_decimal",
			cached:        []altitude.Coordinate{c(46.165012, 15.972512).WithAltitude(173)},
			requested:     []altitude.Coordinate{c(46.1650119, 15.9725117)},
			expected:      []altitude.Coordinate{c(46.1650119, 15.9725117).WithAltitude(173)},
			expectedCache: []altitude.Coordinate{c(46.165012, 15.972512).WithAltitude(173)},
		},
		{
			name:   "mixed",
			cached: []altitude.Coordinate{c(2, 2).WithAltitude(-2), c(4, 4).WithAltitude(-4)},
			requested: []altitude.Coordinate{
				c(1, 1), c(2, 2), c(3, 3), c(4, 4), c(5, 5),
			},
			expected: []altitude.Coordinate{
				c(1, 1).WithAltitude(101),
				c(2, 2).WithAltitude(-2),
				c(3, 3).WithAltitude(103),
				c(4, 4).WithAltitude(-4),
				c(5, 5).WithAltitude(105),
			},
			expectedFetches: [][]altitude.Coordinate{{c(1, 1), c(3, 3), c(5, 5)}},
			expectedCache: []altitude.Coordinate{
				c(2, 2).WithAltitude(-2),
				c(4, 4).WithAltitude(-4),
				c(1, 1).WithAltitude(101),
				c(3, 3).WithAltitude(103),
				c(5, 5).WithAltitude(105),
			},
			expectedSaves: 1,
		},
		{
			name:      "duplicates",
			altitudes: map[string]float64{"1.0000001,1": 7},
			cached: []altitude.Coordinate{
				c(2, 2).WithAltitude(-2),
			},
			requested: []altitude.Coordinate{
				c(1, 1), c(2, 2), c(1, 1), c(2, 2), c(1.0000001, 1),
			},
			expected: []altitude.Coordinate{
				c(1, 1).WithAltitude(101),
				c(2, 2).WithAltitude(-2),
				c(1, 1).WithAltitude(101),
				c(2, 2).WithAltitude(-2),
				c(1.0000001, 1).WithAltitude(7),
			},
			expectedFetches: [][]altitude.Coordinate{{c(1, 1), c(1, 1), c(1.0000001, 1)}},
			expectedCache: []altitude.Coordinate{
				c(2, 2).WithAltitude(-2),
				c(1, 1).WithAltitude(101),
			},
			expectedSaves: 1,
		},
		{
			name:      "all_cached",
			cached:    []altitude.Coordinate{c(1, 1).WithAltitude(11), c(2, 2).WithAltitude(22)},
			requested: []altitude.Coordinate{c(2, 2), c(1, 1), c(2, 2)},
			expected: []altitude.Coordinate{
				c(2, 2).WithAltitude(22),
				c(1, 1).WithAltitude(11),
				c(2, 2).WithAltitude(22),
			},
			expectedCache: []altitude.Coordinate{c(1, 1).WithAltitude(11), c(2, 2).WithAltitude(22)},
		},
		{
			name:      "altitude_overwritten",
			altitudes: map[string]float64{"10,-10": 21},
			requested: []altitude.Coordinate{c(10, -10).WithAltitude(999)},
			expected:  []altitude.Coordinate{c(10, -10).WithAltitude(21)},
			expectedFetches: [][]altitude.Coordinate{
				{c(10, -10).WithAltitude(999)},
			},
			expectedCache: []altitude.Coordinate{c(10, -10).WithAltitude(21)},
			expectedSaves: 1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cacheStore := &testCacheStore{records: altitude.NewRecordSet(tc.cached...)}
			transport := &testTransport{altitudes: tc.altitudes}
			resolver := newTestResolver(t, cacheStore, transport)

			actual, err := resolver.Resolve(t.Context(), tc.requested)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
			for i := range tc.requested {
				assert.Equal(t, tc.requested[i].Latitude(), actual[i].Latitude())
				assert.Equal(t, tc.requested[i].Longitude(), actual[i].Longitude())
			}
			assert.Equal(t, tc.expectedFetches, transport.Calls())
			assert.Equal(t, tc.expectedCache, cacheStore.records.Records())
			assert.Equal(t, 1, cacheStore.loads)
			assert.Equal(t, tc.expectedSaves, cacheStore.saves)
		})
	}
}

func TestResolver_ResolveEmpty(t *testing.T) {
	cacheStore := &testCacheStore{}
	transport := &testTransport{}
	resolver := newTestResolver(t, cacheStore, transport)

	for _, requested := range [][]altitude.Coordinate{nil, {}} {
		actual, err := resolver.Resolve(t.Context(), requested)
		assert.NoError(t, err)
		assert.True(t, actual != nil)
		assert.Equal(t, 0, len(actual))
	}
	assert.Equal(t, 0, len(transport.Calls()))
	assert.Equal(t, 0, cacheStore.loads)
	assert.Equal(t, 0, cacheStore.saves)
}

func TestResolver_ResolveIdempotent(t *testing.T) {
	blobStore := blobstore.NewMemoryStore()
	transport := &testTransport{}
	resolver := newTestResolver(t, altitude.NewBlobCacheStore(blobStore), transport)

	requested := []altitude.Coordinate{
		altitude.MustNewCoordinate(58.2926289, 134.3025286),
		altitude.MustNewCoordinate(7.4894883, 80.8144869),
		altitude.MustNewCoordinate(47.0745464, 12.6938825),
	}

	first, err := resolver.Resolve(t.Context(), requested)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(transport.Calls()))
	assert.Equal(t, 1, blobStore.Puts())

	second, err := resolver.Resolve(t.Context(), requested)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, len(transport.Calls()))
	assert.Equal(t, 1, blobStore.Puts())

	// A new resolver sharing the same cache also makes no transport calls.
	otherTransport := &testTransport{}
	other := newTestResolver(t, altitude.NewBlobCacheStore(blobStore), otherTransport)
	third, err := other.Resolve(t.Context(), requested)
	assert.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 0, len(otherTransport.Calls()))
}

func TestResolver_ResolveErrorNotLogged(t *testing.T) {
	buffer := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buffer, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	transport := &testTransport{err: &altitude.TransportError{Method: "GET", URL: "http://localhost", StatusCode: 503}}
	resolver, err := altitude.NewResolver(
		altitude.WithCacheStore(&testCacheStore{}),
		altitude.WithTransport(transport),
		altitude.WithLogger(logger),
	)
	assert.NoError(t, err)

	_, err = resolver.Resolve(t.Context(), []altitude.Coordinate{altitude.MustNewCoordinate(1, 1)})
	assert.Error(t, err)
	assert.Equal(t, "", buffer.String())
}

func TestResolver_ResolveTransportError(t *testing.T) {
	isTransportError := func(err error) bool {
		var transportErr *altitude.TransportError
		return errors.As(err, &transportErr)
	}
	isProtocolError := func(err error) bool {
		var protocolErr *altitude.ProtocolError
		return errors.As(err, &protocolErr)
	}

	for _, tc := range []struct {
		name      string
		transport *testTransport
		isError   func(error) bool
	}{
		{
			name:      "transport",
			transport: &testTransport{err: &altitude.TransportError{Method: "GET", URL: "http://localhost", StatusCode: 503}},
			isError:   isTransportError,
		},
		{
			name:      "protocol",
			transport: &testTransport{err: &altitude.ProtocolError{Reason: "decode envelope"}},
			isError:   isProtocolError,
		},
		{
			name:      "count_mismatch",
			transport: &testTransport{drop: true},
			isError:   isProtocolError,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			blobStore := blobstore.NewMemoryStore()
			cached := `[{"latitude":1,"longitude":1,"altitude":11}]`
			assert.NoError(t, blobStore.Put(t.Context(), altitude.DefaultCacheName, []byte(cached)))
			resolver := newTestResolver(t, altitude.NewBlobCacheStore(blobStore), tc.transport)

			coords := []altitude.Coordinate{
				altitude.MustNewCoordinate(1, 1),
				altitude.MustNewCoordinate(2, 2),
				altitude.MustNewCoordinate(3, 3),
			}
			actual, err := resolver.Resolve(t.Context(), coords)
			assert.Zero(t, actual)
			assert.True(t, tc.isError(err))

			// The cache is unchanged.
			assert.Equal(t, 1, blobStore.Puts())
			data, err := blobStore.Get(t.Context(), altitude.DefaultCacheName)
			assert.NoError(t, err)
			assert.Equal(t, cached, string(data))

			// ResolveOne and AddAltitude surface the same error.
			_, err = resolver.ResolveOne(t.Context(), altitude.MustNewCoordinate(2, 2))
			assert.True(t, tc.isError(err))

			before := append([]altitude.Coordinate(nil), coords...)
			err = resolver.AddAltitude(t.Context(), coords)
			assert.True(t, tc.isError(err))
			assert.Equal(t, before, coords)
		})
	}
}

func TestResolver_ResolveCountMismatch(t *testing.T) {
	resolver := newTestResolver(t, &testCacheStore{}, &testTransport{drop: true})
	_, err := resolver.Resolve(t.Context(), []altitude.Coordinate{
		altitude.MustNewCoordinate(1, 1),
		altitude.MustNewCoordinate(2, 2),
	})
	var protocolErr *altitude.ProtocolError
	assert.True(t, errors.As(err, &protocolErr))
	assert.Equal(t, 2, protocolErr.Expected)
	assert.Equal(t, 1, protocolErr.Actual)
}

func TestResolver_ResolveSaveError(t *testing.T) {
	saveErr := errors.New("read-only file system")
	cacheStore := &testCacheStore{saveErr: saveErr}
	transport := &testTransport{}
	resolver := newTestResolver(t, cacheStore, transport)

	requested := []altitude.Coordinate{
		altitude.MustNewCoordinate(10, -10),
		altitude.MustNewCoordinate(20, -20),
	}
	actual, err := resolver.Resolve(t.Context(), requested)
	var persistenceErr *altitude.PersistenceError
	assert.True(t, errors.As(err, &persistenceErr))
	assert.Equal(t, "save", persistenceErr.Op)
	assert.IsError(t, err, saveErr)
	assert.Equal(t, []altitude.Coordinate{
		altitude.MustNewCoordinate(10, -10).WithAltitude(110),
		altitude.MustNewCoordinate(20, -20).WithAltitude(120),
	}, actual)
	assert.Equal(t, 1, cacheStore.saves)

	coord, err := resolver.ResolveOne(t.Context(), altitude.MustNewCoordinate(30, -30))
	assert.True(t, errors.As(err, &persistenceErr))
	assert.Equal(t, altitude.MustNewCoordinate(30, -30).WithAltitude(130), coord)

	coords := []altitude.Coordinate{altitude.MustNewCoordinate(40, -40)}
	err = resolver.AddAltitude(t.Context(), coords)
	assert.True(t, errors.As(err, &persistenceErr))
	assert.Equal(t, 140.0, coords[0].Altitude())
}

func TestResolver_ResolveOne(t *testing.T) {
	transport := &testTransport{altitudes: map[string]float64{"46.1650119,15.9725117": 173}}
	resolver := newTestResolver(t, &testCacheStore{}, transport)

	actual, err := resolver.ResolveOne(t.Context(), altitude.MustNewCoordinate(46.1650119, 15.9725117))
	assert.NoError(t, err)
	assert.Equal(t, altitude.MustNewCoordinate(46.1650119, 15.9725117).WithAltitude(173), actual)
}

func TestResolver_AddAltitude(t *testing.T) {
	transport := &testTransport{}
	cacheStore := &testCacheStore{
		records: altitude.NewRecordSet(altitude.MustNewCoordinate(3, 3).WithAltitude(-3)),
	}
	resolver := newTestResolver(t, cacheStore, transport)

	backing := make([]altitude.Coordinate, 4)
	coords := backing[:3]
	coords[0] = altitude.MustNewCoordinate(1, 1)
	coords[1] = altitude.MustNewCoordinate(3, 3)
	coords[2] = altitude.MustNewCoordinate(1, 1)
	assert.NoError(t, resolver.AddAltitude(t.Context(), coords))

	assert.Equal(t, []altitude.Coordinate{
		altitude.MustNewCoordinate(1, 1).WithAltitude(101),
		altitude.MustNewCoordinate(3, 3).WithAltitude(-3),
		altitude.MustNewCoordinate(1, 1).WithAltitude(101),
		{},
	}, backing)

	assert.NoError(t, resolver.AddAltitude(t.Context(), nil))
}

func TestResolver_ResolveConcurrent(t *testing.T) {
	blobStore := blobstore.NewMemoryStore()
	transport := &testTransport{}
	resolver := newTestResolver(t, altitude.NewBlobCacheStore(blobStore), transport)

	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord := altitude.MustNewCoordinate(float64(i), float64(i))
			actual, err := resolver.ResolveOne(context.Background(), coord)
			assert.NoError(t, err)
			assert.Equal(t, coord.WithAltitude(100+float64(i)), actual)
		}()
	}
	wg.Wait()

	records := altitude.NewBlobCacheStore(blobStore).Load(t.Context())
	assert.Equal(t, n, records.Len())
	for i := range n {
		_, ok := records.Find(altitude.MustNewCoordinate(float64(i), float64(i)))
		assert.True(t, ok, fmt.Sprintf("missing %d", i))
	}
}

func TestNewResolver_CacheDir(t *testing.T) {
	dir := t.TempDir()
	transport := &testTransport{}
	resolver, err := altitude.NewResolver(
		altitude.WithCacheDir(dir),
		altitude.WithTransport(transport),
	)
	assert.NoError(t, err)

	_, err = resolver.ResolveOne(t.Context(), altitude.MustNewCoordinate(10, -10))
	assert.NoError(t, err)

	records := altitude.NewBlobCacheStore(blobstore.NewLocalStore(dir)).Load(t.Context())
	assert.Equal(t, []altitude.Coordinate{
		altitude.MustNewCoordinate(10, -10).WithAltitude(110),
	}, records.Records())
}

func TestResolver_OpenElevation(t *testing.T) {
	server := newTestOpenElevationServer(t)
	blobStore := blobstore.NewMemoryStore()
	resolver := newTestResolver(t,
		altitude.NewBlobCacheStore(blobStore),
		altitude.NewOpenElevationClient(altitude.WithBaseURL(server.URL)),
	)

	small := []altitude.Coordinate{
		altitude.MustNewCoordinate(10, -10),
		altitude.MustNewCoordinate(20, -20),
	}
	actual, err := resolver.Resolve(t.Context(), small)
	assert.NoError(t, err)
	assert.Equal(t, []altitude.Coordinate{
		altitude.MustNewCoordinate(10, -10).WithAltitude(100),
		altitude.MustNewCoordinate(20, -20).WithAltitude(200),
	}, actual)

	// Only the misses are sent, and a large batch is sent in a body.
	large := append(makeCoords(200), small...)
	actual, err = resolver.Resolve(t.Context(), large)
	assert.NoError(t, err)
	assert.Equal(t, len(large), len(actual))
	for i, coord := range large {
		assert.Equal(t, coord.WithAltitude(10*coord.Latitude()), actual[i])
	}
	assert.Equal(t, []string{"GET", "POST"}, server.Methods())

	_, err = resolver.Resolve(t.Context(), large)
	assert.NoError(t, err)
	assert.Equal(t, []string{"GET", "POST"}, server.Methods())
	assert.Equal(t, 2, blobStore.Puts())
}
