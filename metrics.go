package altitude

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "altitude_cache_hits_total",
		Help: "The total number of requested coordinates found in the cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "altitude_cache_misses_total",
		Help: "The total number of requested coordinates not found in the cache",
	})
	cacheRecordsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "altitude_cache_records_added_total",
		Help: "The total number of records added to the cache",
	})
	cacheLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "altitude_cache_load_failures_total",
		Help: "The total number of cache loads that fell back to an empty cache",
	})
	cacheSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "altitude_cache_saves_total",
		Help: "The total number of cache saves by result",
	}, []string{"result"})
	transportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "altitude_transport_requests_total",
		Help: "The total number of requests to the remote elevation service by method",
	}, []string{"method"})
	transportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "altitude_transport_failures_total",
		Help: "The total number of failed requests to the remote elevation service by kind",
	}, []string{"kind"})
)
