// Package ratelimit keeps informational bookkeeping of the photo API's hourly
// request quota. It reads the X-Ratelimit-Limit and X-Ratelimit-Remaining
// response headers, exposes the latest state, logs when the quota runs low and
// optionally mirrors the state to Redis so that several processes sharing one
// access key can see it. It never blocks or delays a request.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit      = "photofeed:rate_limit:limit"
	RedisKeyRemaining  = "photofeed:rate_limit:remaining"
	RedisKeyLastUpdate = "photofeed:rate_limit:last_update"
)

// Thresholds, as a fraction of the hourly limit.
const (
	// LowWaterFraction marks the quota as low when remaining/limit falls below it.
	LowWaterFraction = 0.1

	// HealthyFraction marks the quota as healthy when remaining/limit is at or above it.
	HealthyFraction = 0.5
)

// RequestsPerHourDemo is the hourly quota of a demo-mode access key, assumed
// until the first response reports the real limit.
const RequestsPerHourDemo = 50

// RateLimitState is the last quota reported by the API.
type RateLimitState struct {
	// Limit is the hourly request quota (X-Ratelimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left this hour (X-Ratelimit-Remaining).
	Remaining int `json:"remaining"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= HealthyFraction of Limit.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Exhausted reports whether the quota for this hour is used up.
func (s *RateLimitState) Exhausted() bool {
	return s.Remaining <= 0
}

// IsLow reports whether the remaining quota has dropped under the low-water mark.
func (s *RateLimitState) IsLow() bool {
	if s.Limit <= 0 {
		return s.Remaining <= 0
	}
	return float64(s.Remaining) < float64(s.Limit)*LowWaterFraction
}

// UsedFraction returns how much of the quota has been consumed, in [0, 1].
func (s *RateLimitState) UsedFraction() float64 {
	if s.Limit <= 0 {
		return 0
	}
	used := float64(s.Limit-s.Remaining) / float64(s.Limit)
	switch {
	case used < 0:
		return 0
	case used > 1:
		return 1
	}
	return used
}

// UpdateHealth updates IsHealthy from Limit and Remaining.
func (s *RateLimitState) UpdateHealth() {
	if s.Limit <= 0 {
		s.IsHealthy = s.Remaining > 0
		return
	}
	s.IsHealthy = float64(s.Remaining) >= float64(s.Limit)*HealthyFraction
}
