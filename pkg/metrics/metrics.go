// Package metrics exposes the Prometheus registry used by photofeed.
// Metrics are defined next to the code they measure (client, cache,
// ratelimit, pagination) and registered via promauto; this package serves
// them and documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all photofeed metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Page loading (pkg/pagination):
//   - photofeed_page_fetches_total{outcome} (Counter): loaded, network, server, decode, stale
//   - photofeed_pages_in_flight (Gauge): fetches issued, not yet applied or cancelled
//   - photofeed_stale_completions_total (Counter): completions discarded after a refresh
//   - photofeed_page_fetch_duration_seconds{outcome} (Histogram)
//
// Requests (pkg/client):
//   - photofeed_api_requests_total{endpoint, status} (Counter)
//   - photofeed_api_request_duration_seconds{endpoint} (Histogram)
//   - photofeed_api_errors_total{class} (Counter): client, server, rate_limit, network, decode
//   - photofeed_api_retries_total{error_class} (Counter)
//   - photofeed_api_retry_exhausted_total{error_class} (Counter)
//
// Cache (pkg/cache):
//   - photofeed_cache_hits_total{layer} (Counter): memory, redis
//   - photofeed_cache_misses_total (Counter)
//   - photofeed_cache_entries{layer} (Gauge)
//   - photofeed_conditional_requests_total (Counter)
//   - photofeed_304_responses_total (Counter)
//   - photofeed_cache_errors_total{operation} (Counter)
//
// Rate limit (pkg/ratelimit):
//   - photofeed_ratelimit_remaining (Gauge)
//   - photofeed_ratelimit_limit (Gauge)
//   - photofeed_ratelimit_low_total (Counter)
//
// Example Prometheus Queries:
//
//   # Stale completion share
//   rate(photofeed_stale_completions_total[5m]) / sum(rate(photofeed_page_fetches_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(photofeed_cache_hits_total[5m])) /
//   (sum(rate(photofeed_cache_hits_total[5m])) + sum(rate(photofeed_cache_misses_total[5m])))
//
//   # Quota headroom
//   photofeed_ratelimit_remaining / photofeed_ratelimit_limit
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(photofeed_page_fetch_duration_seconds_bucket[5m]))
