package pagination

import (
	"fmt"
	"time"
)

// Config holds coordinator configuration.
type Config struct {
	// PageSize is the number of items per page. The coordinator uses the page
	// size of its collection; PageSize must be zero or equal to it.
	PageSize int

	// LookAheadMargin is the number of rows past the visible row that
	// trigger a speculative fetch of the next page.
	LookAheadMargin int

	// InitialCountEstimate sizes the collection until the real count is known.
	InitialCountEstimate int

	// MaxConcurrency is the maximum number of fetches talking to the remote
	// at once. Extra fetches wait for a slot and still count as in flight.
	MaxConcurrency int

	// Timeout per page fetch, measured from the moment it gets a slot.
	Timeout time.Duration
}

// DefaultConfig returns the feed defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:             25,
		LookAheadMargin:      10,
		InitialCountEstimate: 200,
		MaxConcurrency:       4,
		Timeout:              15 * time.Second,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.PageSize < 0 {
		return fmt.Errorf("page size must be positive (got %d)", c.PageSize)
	}
	if c.LookAheadMargin < 0 {
		return fmt.Errorf("look-ahead margin must be >= 0 (got %d)", c.LookAheadMargin)
	}
	if c.InitialCountEstimate < 0 {
		return fmt.Errorf("initial count estimate must be >= 0 (got %d)", c.InitialCountEstimate)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must be >= 0 (got %d)", c.MaxConcurrency)
	}
	return nil
}

func (c Config) normalized() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}
