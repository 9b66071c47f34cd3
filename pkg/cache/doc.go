// Package cache provides the Redis-backed cache client and the JSON document
// cache used by the chapter listing.
//
// The client is built once at startup and shared by every consumer:
//
// - Startup blocks until the connection attempt resolves (ready, failed, or disabled)
// - Every call is bounded by a short per-operation timeout
// - A circuit breaker short-circuits calls while Redis keeps failing
// - Failures surface as errors that callers treat as "no cache"
//
// # Basic Usage
//
//	client := cache.Connect(ctx, cache.DefaultConfig(), logger)
//	defer client.Close()
//
//	manager := cache.NewManager(client, logger)
//
//	raw, err := manager.GetRaw(ctx, cache.ChaptersKey)
//	if err != nil {
//		// miss, unavailable or corrupt: compute the response live
//	}
//
//	// After computing the default listing
//	_ = manager.SetJSON(ctx, cache.ChaptersKey, resp, cache.ChaptersTTL)
//
//	// After any write
//	_ = manager.Invalidate(ctx, cache.ChaptersKey)
//
// # Keys
//
// CacheKey renders a resource plus its non-default query parameters. Only
// keys without parameters are cacheable, so filtered or paginated views
// never read or overwrite the stored default listing.
//
// # Metrics
//
//   - chapters_cache_hits_total{key} - Cache hits
//   - chapters_cache_misses_total{key} - Cache misses (including corrupt entries)
//   - chapters_cache_invalidations_total{key} - Deletions after writes
//   - chapters_cache_errors_total{operation} - Cache operation errors
//   - chapters_cache_breaker_state - Redis circuit breaker state
package cache
