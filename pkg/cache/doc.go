// Package cache keeps photo API responses for conditional revalidation.
//
// Entries live in a bounded in-memory LRU layer and, when a Redis client is
// supplied, in a shared Redis layer that lets several feed processes reuse each
// other's responses. Lookups try memory first, then Redis, and promote Redis
// hits into memory.
//
// # Usage
//
//	manager, err := cache.NewManager(256, redisClient) // redisClient may be nil
//	key := cache.CacheKey{
//		Endpoint:    "/photos",
//		QueryParams: url.Values{"page": []string{"2"}, "per_page": []string{"25"}},
//	}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API
//	}
//
// # Conditional requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 reply means entry.Data is still current
//	}
//
// # Metrics
//
//   - photofeed_cache_hits_total{layer} - hits by layer (memory, redis)
//   - photofeed_cache_misses_total - misses across all layers
//   - photofeed_cache_entries{layer="memory"} - entries held in memory
//   - photofeed_conditional_requests_total - requests sent with If-None-Match/If-Modified-Since
//   - photofeed_304_responses_total - conditional request successes
//   - photofeed_cache_errors_total{operation} - cache operation errors
package cache
