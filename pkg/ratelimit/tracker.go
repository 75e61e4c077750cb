package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Header names used by the photo API.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
)

var (
	apiRatelimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photofeed_ratelimit_remaining",
		Help: "Requests remaining in the current hourly quota window",
	})

	apiRatelimitLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photofeed_ratelimit_limit",
		Help: "Hourly request quota reported by the API",
	})

	apiRatelimitLowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photofeed_ratelimit_low_total",
		Help: "Number of responses received while the quota was under the low-water mark",
	})
)

// Tracker records the quota state reported by API responses.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	state  RateLimitState
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		state: RateLimitState{
			Limit:      RequestsPerHourDemo,
			Remaining:  RequestsPerHourDemo,
			LastUpdate: time.Now(),
			IsHealthy:  true,
		},
		redis:  redisClient,
		logger: logger,
	}
}

// State returns a copy of the most recent local state.
func (t *Tracker) State() RateLimitState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SharedState reads the state mirrored in Redis, falling back to the local state
// when Redis is not configured or holds nothing yet.
func (t *Tracker) SharedState(ctx context.Context) (RateLimitState, error) {
	if t.redis == nil {
		return t.State(), nil
	}

	values, err := t.redis.MGet(ctx, RedisKeyLimit, RedisKeyRemaining, RedisKeyLastUpdate).Result()
	if err != nil {
		return RateLimitState{}, fmt.Errorf("get shared rate limit state: %w", err)
	}
	if values[0] == nil || values[1] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, using local state")
		return t.State(), nil
	}

	limit, err := strconv.Atoi(fmt.Sprint(values[0]))
	if err != nil {
		return RateLimitState{}, fmt.Errorf("parse shared limit: %w", err)
	}
	remaining, err := strconv.Atoi(fmt.Sprint(values[1]))
	if err != nil {
		return RateLimitState{}, fmt.Errorf("parse shared remaining: %w", err)
	}

	state := RateLimitState{Limit: limit, Remaining: remaining}
	if values[2] != nil {
		if unix, err := strconv.ParseInt(fmt.Sprint(values[2]), 10, 64); err == nil {
			state.LastUpdate = time.Unix(unix, 0)
		}
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders records the quota from a response's headers. Responses that
// carry no rate-limit headers (e.g. 304 from a cache) leave the state unchanged.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	t.mu.Lock()
	limit := t.state.Limit
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
		limit = parsed
	}

	state := RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()
	t.state = state
	t.mu.Unlock()

	apiRatelimitRemaining.Set(float64(remaining))
	apiRatelimitLimit.Set(float64(limit))

	switch {
	case state.Exhausted():
		apiRatelimitLowTotal.Inc()
		t.logger.Error().
			Int("remaining", remaining).
			Int("limit", limit).
			Msg("Hourly request quota exhausted")
	case state.IsLow():
		apiRatelimitLowTotal.Inc()
		t.logger.Warn().
			Int("remaining", remaining).
			Int("limit", limit).
			Msg("Hourly request quota running low")
	default:
		t.logger.Debug().
			Int("remaining", remaining).
			Int("limit", limit).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	if t.redis == nil {
		return nil
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyLimit, limit, time.Hour)
	pipe.Set(ctx, RedisKeyRemaining, remaining, time.Hour)
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.Unix(), time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	return nil
}
