package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/photofeed/pkg/paged"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Page is the result of fetching one page. Total is the size of the whole
// collection when the remote reported it, or -1. A zero Total is a real,
// empty collection.
type Page[T any] struct {
	Items []T
	Total int
}

// PageFetcher fetches one page of a remote collection. pageNumber is 1-based.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (Page[T], error)
}

// PageOf returns a page of items whose collection size is unknown.
func PageOf[T any](items []T) Page[T] {
	return Page[T]{Items: items, Total: -1}
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc[T any] func(ctx context.Context, resource string, pageNumber, pageSize int) (Page[T], error)

// FetchPage calls f.
func (f FetcherFunc[T]) FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (Page[T], error) {
	return f(ctx, resource, pageNumber, pageSize)
}

// Completion is the outcome of one fetch, waiting to be applied by the owner.
type Completion[T any] struct {
	page       int
	generation uint64
	result     Page[T]
	err        error
	duration   time.Duration
}

// Page returns the 0-based page index the completion belongs to.
func (c Completion[T]) Page() int { return c.page }

// Generation returns the generation the fetch was issued under.
func (c Completion[T]) Generation() uint64 { return c.generation }

// Coordinator decides which pages to fetch and applies completions to its
// collection. It is not safe for concurrent use: every method must be called
// from the owner goroutine.
type Coordinator[T any] struct {
	collection *paged.Collection[T]
	fetcher    PageFetcher[T]
	resource   string
	config     Config
	observer   Observer
	logger     zerolog.Logger

	generation    uint64
	inFlight      map[int]context.CancelFunc
	countResolved bool
	// countInferred marks a count taken from a short page. It can still be
	// lowered by a shorter earlier page or replaced by a reported total.
	countInferred bool

	slots       chan struct{}
	completions chan Completion[T]

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closed     chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewCoordinator creates a coordinator writing into collection. observer may be nil.
func NewCoordinator[T any](collection *paged.Collection[T], fetcher PageFetcher[T], resource string, config Config, observer Observer) (*Coordinator[T], error) {
	if collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PageSize != 0 && config.PageSize != collection.PageSize() {
		return nil, fmt.Errorf("page size %d does not match collection page size %d",
			config.PageSize, collection.PageSize())
	}
	config = config.normalized()
	config.PageSize = collection.PageSize()
	if observer == nil {
		observer = nopObserver{}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Coordinator[T]{
		collection:  collection,
		fetcher:     fetcher,
		resource:    resource,
		config:      config,
		observer:    observer,
		logger:      log.With().Str("component", "coordinator").Str("resource", resource).Logger(),
		inFlight:    make(map[int]context.CancelFunc),
		slots:       make(chan struct{}, config.MaxConcurrency),
		completions: make(chan Completion[T], config.MaxConcurrency),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		closed:      make(chan struct{}),
	}, nil
}

// Collection returns the collection the coordinator writes into.
func (c *Coordinator[T]) Collection() *paged.Collection[T] {
	return c.collection
}

// Config returns the effective configuration.
func (c *Coordinator[T]) Config() Config {
	return c.config
}

// Completions delivers finished fetches. The owner must keep draining it and
// pass every value to Apply.
func (c *Coordinator[T]) Completions() <-chan Completion[T] {
	return c.completions
}

// Generation returns the current generation.
func (c *Coordinator[T]) Generation() uint64 {
	return c.generation
}

// InFlight reports whether page has an outstanding fetch.
func (c *Coordinator[T]) InFlight(page int) bool {
	_, ok := c.inFlight[page]
	return ok
}

// InFlightCount returns the number of outstanding fetches.
func (c *Coordinator[T]) InFlightCount() int {
	return len(c.inFlight)
}

// CountResolved reports whether the real count is known for this generation.
func (c *Coordinator[T]) CountResolved() bool {
	return c.countResolved
}

// EnsureLoaded issues a fetch for page unless it is loaded, already in
// flight, or out of range. It returns true if a fetch was issued.
func (c *Coordinator[T]) EnsureLoaded(page int) bool {
	if c.isClosed() {
		return false
	}
	if !c.collection.ValidPage(page) {
		c.logger.Debug().Int("page", page).Int("count", c.collection.Count()).Msg("Page out of range")
		return false
	}
	if c.collection.IsPageLoaded(page) {
		return false
	}
	if _, ok := c.inFlight[page]; ok {
		c.logger.Debug().Int("page", page).Msg("Page already in flight")
		return false
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.inFlight[page] = cancel
	pagesInFlight.Inc()

	c.wg.Add(1)
	go c.fetch(ctx, cancel, page, c.generation)

	c.logger.Debug().
		Int("page", page).
		Uint64("generation", c.generation).
		Msg("Page fetch issued")
	return true
}

// Prefetch applies the prefetch policy for a visible row: it ensures the
// row's page and, when row+LookAheadMargin falls on a later page, that page
// too. It returns the pages for which a fetch was issued.
func (c *Coordinator[T]) Prefetch(row int) []int {
	if row < 0 || row >= c.collection.Count() {
		return nil
	}

	var issued []int
	page := c.collection.PageIndexFor(row)
	if c.EnsureLoaded(page) {
		issued = append(issued, page)
	}

	ahead := row + c.config.LookAheadMargin
	if ahead < c.collection.Count() {
		if next := c.collection.PageIndexFor(ahead); next > page && c.EnsureLoaded(next) {
			issued = append(issued, next)
		}
	}
	return issued
}

// CancelAll cancels every outstanding fetch, clears the in-flight set and
// starts a new generation. Late completions of cancelled fetches are
// discarded by Apply. Count resolution is re-armed.
func (c *Coordinator[T]) CancelAll() {
	cancelled := len(c.inFlight)
	for page, cancel := range c.inFlight {
		cancel()
		delete(c.inFlight, page)
	}
	pagesInFlight.Sub(float64(cancelled))

	c.generation++
	c.countResolved = false
	c.countInferred = false

	c.logger.Info().
		Int("cancelled", cancelled).
		Uint64("generation", c.generation).
		Msg("Cancelled outstanding fetches")
}

// ResolveCount sets the real size of the collection unless it was already
// resolved in this generation. A count inferred from a short page is
// replaced. It returns true if the count was applied.
func (c *Coordinator[T]) ResolveCount(n int) bool {
	if n < 0 || (c.countResolved && !c.countInferred) {
		return false
	}
	c.resolveCount(n, false)
	return true
}

func (c *Coordinator[T]) resolveCount(n int, inferred bool) {
	c.countResolved = true
	c.countInferred = inferred
	c.collection.SetTotalCount(n)
	c.logger.Info().
		Int("count", n).
		Bool("inferred", inferred).
		Uint64("generation", c.generation).
		Msg("Total count resolved")
	c.observer.OnEvent(TotalCountResolved{Count: n, Generation: c.generation})
}

// Apply applies a completion to the collection and emits the matching event.
// Completions from an older generation are discarded. It returns true if the
// completion took effect.
func (c *Coordinator[T]) Apply(comp Completion[T]) bool {
	if comp.generation != c.generation {
		c.discard(comp)
		return false
	}
	cancel, ok := c.inFlight[comp.page]
	if !ok {
		c.discard(comp)
		return false
	}
	cancel()
	delete(c.inFlight, comp.page)
	pagesInFlight.Dec()

	if comp.err != nil {
		fetchErr := newFetchError(comp.page, comp.err)
		pageFetchesTotal.WithLabelValues(string(fetchErr.Kind)).Inc()
		pageFetchDuration.WithLabelValues(string(fetchErr.Kind)).Observe(comp.duration.Seconds())
		c.logger.Warn().
			Err(comp.err).
			Int("page", comp.page).
			Str("error_class", string(fetchErr.Kind)).
			Int("status", fetchErr.StatusCode).
			Dur("duration", comp.duration).
			Msg("Page fetch failed")
		c.observer.OnEvent(PageFailed{Page: comp.page, Err: fetchErr, Generation: c.generation})
		return true
	}

	items := comp.result.Items
	c.collection.SetPage(comp.page, items)
	pageFetchesTotal.WithLabelValues("loaded").Inc()
	pageFetchDuration.WithLabelValues("loaded").Observe(comp.duration.Seconds())

	if !c.countResolved || c.countInferred {
		switch {
		case comp.result.Total >= 0:
			c.resolveCount(comp.result.Total, false)
		case len(items) < c.config.PageSize:
			// pages can complete out of order, so the shortest end wins
			if n := comp.page*c.config.PageSize + len(items); !c.countResolved || n < c.collection.Count() {
				c.resolveCount(n, true)
			}
		}
	}

	bounds := c.collection.BoundsFor(comp.page)
	if bounds.Len() == 0 {
		c.logger.Debug().
			Int("page", comp.page).
			Int("count", c.collection.Count()).
			Dur("duration", comp.duration).
			Msg("Page loaded beyond count")
		return true
	}
	c.logger.Info().
		Int("page", comp.page).
		Int("range_start", bounds.Start).
		Int("range_end", bounds.End).
		Dur("duration", comp.duration).
		Msg("Page loaded")
	c.observer.OnEvent(PageLoaded{Page: comp.page, Range: bounds, Generation: c.generation})
	return true
}

func (c *Coordinator[T]) discard(comp Completion[T]) {
	staleCompletionsTotal.Inc()
	pageFetchesTotal.WithLabelValues("stale").Inc()
	c.logger.Debug().
		Err(ErrStaleGeneration).
		Int("page", comp.page).
		Uint64("generation", comp.generation).
		Uint64("current_generation", c.generation).
		Msg("Discarded completion")
}

// Close cancels all fetches and waits for their goroutines to return. The
// coordinator issues no fetches afterwards.
func (c *Coordinator[T]) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.baseCancel()
		pagesInFlight.Sub(float64(len(c.inFlight)))
		clear(c.inFlight)
		c.wg.Wait()
	})
}

func (c *Coordinator[T]) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fetch runs one page fetch and delivers its completion.
func (c *Coordinator[T]) fetch(ctx context.Context, cancel context.CancelFunc, page int, generation uint64) {
	defer c.wg.Done()
	defer cancel()

	comp := Completion[T]{page: page, generation: generation}

	select {
	case c.slots <- struct{}{}:
		if comp.err = ctx.Err(); comp.err == nil {
			start := time.Now()
			fetchCtx, cancelFetch := context.WithTimeout(ctx, c.config.Timeout)
			comp.result, comp.err = c.fetcher.FetchPage(fetchCtx, c.resource, page+1, c.config.PageSize)
			cancelFetch()
			comp.duration = time.Since(start)
		}
		<-c.slots
	case <-ctx.Done():
		comp.err = ctx.Err()
	}

	select {
	case c.completions <- comp:
	case <-c.closed:
	}
}
