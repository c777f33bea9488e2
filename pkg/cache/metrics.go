package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultStored  = "stored"
	resultSkipped = "skipped"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_cache_lookups_total",
		Help: "VIES cache lookups by result (hit, miss)",
	}, []string{"result"})

	cacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_cache_writes_total",
		Help: "VIES answers offered to the cache by result (stored, skipped)",
	}, []string{"result"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_cache_errors_total",
		Help: "VIES cache errors by operation",
	}, []string{"operation"})
)
