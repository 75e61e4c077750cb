// Package feed runs an infinite-scroll photo feed session: one owner
// goroutine that turns visible rows into page fetches and applies their
// completions.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/photofeed/pkg/paged"
	"github.com/Sternrassler/photofeed/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by commands issued to a session that has stopped.
	ErrClosed = errors.New("feed session closed")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("feed session already running")
)

// Counter resolves the real size of the feed's collection.
type Counter interface {
	TotalCount(ctx context.Context) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context) (int, error)

// TotalCount calls f.
func (f CounterFunc) TotalCount(ctx context.Context) (int, error) {
	return f(ctx)
}

// Config holds session configuration.
type Config struct {
	// Resource is the list resource the feed pages through.
	Resource string

	Pagination pagination.Config
}

// DefaultConfig returns a feed over the latest photos.
func DefaultConfig() Config {
	return Config{
		Resource:   "/photos",
		Pagination: pagination.DefaultConfig(),
	}
}

// Snapshot describes the session state at one point in time.
type Snapshot struct {
	Count         int
	PageSize      int
	CountResolved bool
	LoadedPages   []int
	InFlight      int
	Generation    uint64
}

type countResult struct {
	generation uint64
	count      int
	err        error
}

// Session owns a collection and its coordinator. All state is touched only
// by the goroutine inside Run; the exported methods marshal onto it.
type Session struct {
	config     Config
	collection *paged.Collection[string]
	coord      *pagination.Coordinator[string]
	counter    Counter
	logger     zerolog.Logger

	cmds    chan func()
	counts  chan countResult
	stopped chan struct{}
	running atomic.Bool

	// owner-only
	runCtx  context.Context
	countWG sync.WaitGroup
}

// New creates a session. counter and observer may be nil. The observer runs
// on the session goroutine and must not call back into the session.
func New(cfg Config, fetcher pagination.PageFetcher[string], counter Counter, observer pagination.Observer) (*Session, error) {
	if cfg.Resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	if cfg.Pagination.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive (got %d)", cfg.Pagination.PageSize)
	}

	collection, err := paged.New[string](cfg.Pagination.InitialCountEstimate, cfg.Pagination.PageSize)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	coord, err := pagination.NewCoordinator(collection, fetcher, cfg.Resource, cfg.Pagination, observer)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	return &Session{
		config:     cfg,
		collection: collection,
		coord:      coord,
		counter:    counter,
		logger:     log.With().Str("component", "feed").Str("resource", cfg.Resource).Logger(),
		cmds:       make(chan func()),
		counts:     make(chan countResult, 1),
		stopped:    make(chan struct{}),
	}, nil
}

// Run drives the session until ctx ends. It loads the first page, resolves
// the count, then serves commands and completions. The coordinator is closed
// before Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx

	defer close(s.stopped)
	defer s.coord.Close()
	defer s.countWG.Wait()
	defer cancel()

	s.logger.Info().
		Int("page_size", s.collection.PageSize()).
		Int("count", s.collection.Count()).
		Msg("Feed session started")
	s.start()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Uint64("generation", s.coord.Generation()).Msg("Feed session stopped")
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd()
		case comp := <-s.coord.Completions():
			s.coord.Apply(comp)
		case res := <-s.counts:
			s.applyCount(res)
		}
	}
}

// start begins a generation: first page plus count resolution.
func (s *Session) start() {
	s.coord.EnsureLoaded(0)

	if s.counter == nil {
		return
	}
	generation := s.coord.Generation()
	timeout := s.coord.Config().Timeout
	ctx := s.runCtx

	s.countWG.Add(1)
	go func() {
		defer s.countWG.Done()

		countCtx, cancel := context.WithTimeout(ctx, timeout)
		n, err := s.counter.TotalCount(countCtx)
		cancel()

		select {
		case s.counts <- countResult{generation: generation, count: n, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) applyCount(res countResult) {
	if res.generation != s.coord.Generation() {
		s.logger.Debug().
			Err(pagination.ErrStaleGeneration).
			Uint64("generation", res.generation).
			Msg("Discarded count")
		return
	}
	if res.err != nil {
		s.logger.Warn().
			Err(res.err).
			Int("count", s.collection.Count()).
			Msg("Count lookup failed, keeping estimate")
		return
	}
	s.coord.ResolveCount(res.count)
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Visible reports that row is on screen. It returns the pages for which a
// fetch was issued.
func (s *Session) Visible(ctx context.Context, row int) ([]int, error) {
	var issued []int
	err := s.do(ctx, func() {
		issued = s.coord.Prefetch(row)
	})
	return issued, err
}

// Item returns the item at global index i, if its page is loaded.
func (s *Session) Item(ctx context.Context, i int) (string, bool, error) {
	var (
		item string
		ok   bool
	)
	err := s.do(ctx, func() {
		item, ok = s.collection.ItemAt(i)
	})
	return item, ok, err
}

// Refresh discards all loaded pages and outstanding fetches and starts over
// from the first page. The count returns to the estimate until it is
// resolved again.
func (s *Session) Refresh(ctx context.Context) error {
	return s.do(ctx, func() {
		start := time.Now()
		s.coord.CancelAll()
		s.collection.Reset()
		s.collection.SetTotalCount(s.config.Pagination.InitialCountEstimate)
		s.start()
		s.logger.Info().
			Uint64("generation", s.coord.Generation()).
			Dur("duration", time.Since(start)).
			Msg("Feed refreshed")
	})
}

// Snapshot returns the current session state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{
			Count:         s.collection.Count(),
			PageSize:      s.collection.PageSize(),
			CountResolved: s.coord.CountResolved(),
			LoadedPages:   s.collection.LoadedPages(),
			InFlight:      s.coord.InFlightCount(),
			Generation:    s.coord.Generation(),
		}
	})
	return snap, err
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}
