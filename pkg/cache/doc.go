// Package cache keeps definitive VIES answers in Redis so that a rerun of
// the same partner file does not ask VIES again for numbers it already
// settled.
//
// Only VALID or INVALID answers without an error code are cached; quota
// rejections and transport failures always go back to VIES. Entries carry
// their own expiry and the Redis key expires at the same instant. Keys have
// the form vies:check:<country>:<identifier>.
//
// The client uses the cache like this:
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	result, err := manager.Load(ctx, vat.LookupResult{Record: rec})
//	if errors.Is(err, cache.ErrCacheMiss) {
//		result = askVIES(rec)
//		_, _ = manager.Store(ctx, result)
//	}
//
// Metrics: vies_cache_lookups_total{result}, vies_cache_writes_total{result}
// and vies_cache_errors_total{operation}.
package cache
