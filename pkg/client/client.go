// Package client provides the photo API HTTP client with response caching,
// rate-limit bookkeeping, and error classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/photofeed/pkg/cache"
	"github.com/Sternrassler/photofeed/pkg/ratelimit"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Prometheus metrics for photo API requests.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photofeed_api_requests_total",
		Help: "Total photo API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photofeed_api_request_duration_seconds",
		Help:    "Photo API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photofeed_api_errors_total",
		Help: "Total photo API errors by class",
	}, []string{"class"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photofeed_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photofeed_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// HeaderTotal carries the size of a paged list resource.
const HeaderTotal = "X-Total"

// maxErrorBody bounds how much of a failed response is read for its payload.
const maxErrorBody = 64 << 10

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// AccessKey is sent as "Authorization: Client-ID <key>" (REQUIRED).
	AccessKey string

	// AcceptVersion is sent as the Accept-Version header.
	AcceptVersion string

	UserAgent string

	// Timeout applies to every HTTP round trip.
	Timeout time.Duration

	// Redis is optional. When set it backs the shared cache layer and
	// mirrors the rate-limit state.
	Redis *redis.Client

	// MemoryCacheSize is the number of responses kept in memory.
	MemoryCacheSize int

	Retry RetryConfig

	// DefaultOrder is used by FetchPage.
	DefaultOrder Sort
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(accessKey string) Config {
	return Config{
		BaseURL:         "https://api.unsplash.com",
		AccessKey:       accessKey,
		AcceptVersion:   "v1",
		UserAgent:       "photofeed/1.0",
		Timeout:         15 * time.Second,
		MemoryCacheSize: cache.DefaultMemoryEntries,
		Retry:           DefaultRetryConfig(),
		DefaultOrder:    SortLatest,
	}
}

// Client is the photo API client. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !cfg.DefaultOrder.Valid() {
		return nil, fmt.Errorf("unknown order %q", cfg.DefaultOrder)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.Retry = cfg.Retry.normalized()

	logger := log.With().Str("component", "photo-client").Logger()

	cacheManager, err := cache.NewManager(cfg.MemoryCacheSize, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs a request with authentication, conditional caching, rate-limit
// bookkeeping, and retries of transient failures. Non-2xx responses are
// returned as *APIError with the body already consumed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.CacheKey{
		Endpoint:    endpoint,
		QueryParams: req.URL.Query(),
	}

	cachedEntry, err := c.cache.Get(ctx, cacheKey)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		cache.CacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
	}

	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	req.Header.Set("Authorization", "Client-ID "+c.config.AccessKey)
	req.Header.Set("Accept", "application/json")
	if c.config.AcceptVersion != "" {
		req.Header.Set("Accept-Version", c.config.AcceptVersion)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing API request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return nil
		}

		apiErr := newAPIError(resp)
		resp = nil
		apiErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", apiErr.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Strs("errors", apiErr.Errors).
			Msg("API request error")
		return apiErr
	}, ClassOf)

	if retryErr != nil {
		return nil, retryErr
	}

	if resp.StatusCode == http.StatusNotModified {
		cache.NotModifiedResponses.Inc()
		if cachedEntry == nil {
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassServer,
				Message:    "not modified without a cached response",
			}
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")

		// ResponseToEntry drains and closes the 304 body
		if fresh, err := cache.ResponseToEntry(resp); err == nil {
			if err := c.cache.UpdateTTL(ctx, cacheKey, fresh.Expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		} else {
			resp.Body.Close()
		}
		return cache.EntryToResponse(cachedEntry), nil
	}

	if resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				cache.CacheErrors.WithLabelValues("set").Inc()
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// newAPIError builds the error for a failed response and closes its body.
func newAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp),
		Message:    http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Errors = payload.Errors
	}
	return apiErr
}

// classifyStatus categorizes a failed response.
func classifyStatus(resp *http.Response) ErrorClass {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get(ratelimit.HeaderRemaining) == "0":
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Get performs a GET request against an API path.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	target := c.config.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// ListOptions selects one page of a list resource.
type ListOptions struct {
	// Page is 1-based.
	Page    int
	PerPage int
	OrderBy Sort
	// Query is the search term; it overrides a query carried by the resource.
	Query string
}

// ListPhotos fetches one page of photos from resource. resource may carry a
// query string, e.g. "/search/photos?query=cats".
func (c *Client) ListPhotos(ctx context.Context, resource string, opts ListOptions) (*PhotoPage, error) {
	path, query, err := splitResource(resource)
	if err != nil {
		return nil, fmt.Errorf("parse resource %q: %w", resource, err)
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.OrderBy != "" {
		query.Set("order_by", string(opts.OrderBy))
	}
	if opts.Query != "" {
		query.Set("query", opts.Query)
	}

	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	page := &PhotoPage{Total: -1}
	if isSearch(path) {
		var envelope searchResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, decodeError(resp.StatusCode, path, err)
		}
		page.Photos = envelope.Results
		page.Total = envelope.Total
	} else if err := json.Unmarshal(body, &page.Photos); err != nil {
		return nil, decodeError(resp.StatusCode, path, err)
	}

	if total, err := strconv.Atoi(resp.Header.Get(HeaderTotal)); err == nil && total >= 0 {
		page.Total = total
	}

	c.logger.Debug().
		Str("resource", path).
		Int("page", opts.Page).
		Int("count", len(page.Photos)).
		Int("total", page.Total).
		Msg("Photo page fetched")

	return page, nil
}

// FetchPage fetches request page pageNumber (1-based) using the default order.
func (c *Client) FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (*PhotoPage, error) {
	return c.ListPhotos(ctx, resource, ListOptions{
		Page:    pageNumber,
		PerPage: pageSize,
		OrderBy: c.config.DefaultOrder,
	})
}

// TotalPhotos returns the number of photos reported by the stats resource.
func (c *Client) TotalPhotos(ctx context.Context) (int, error) {
	resp, err := c.Get(ctx, StatsTotalPath, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var stats statsTotal
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, decodeError(resp.StatusCode, StatsTotalPath, err)
	}
	if stats.Photos < 0 {
		return 0, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    fmt.Sprintf("negative photo total %d", stats.Photos),
		}
	}
	return stats.Photos, nil
}

func decodeError(status int, path string, err error) *APIError {
	apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	return &APIError{
		StatusCode: status,
		ErrorClass: ErrorClassDecode,
		Message:    "decode " + path,
		Err:        err,
	}
}

// RateLimit returns the most recent rate-limit state.
func (c *Client) RateLimit() ratelimit.RateLimitState {
	return c.rateLimiter.State()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
