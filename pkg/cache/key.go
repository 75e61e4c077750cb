package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key, in memory and in Redis.
const KeyPrefix = "photofeed"

// CacheKey identifies a cached API response.
type CacheKey struct {
	// Endpoint is the resource path (e.g. "/users/jane/photos")
	Endpoint string

	// QueryParams are the request query parameters (page, per_page, order_by, query)
	QueryParams url.Values
}

// String generates a deterministic cache key string.
//
//	photofeed:photos:order_by=latest:page=2:per_page=25
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
