// Command photofeed runs a headless photo feed: it scrolls through a number
// of rows, lets the feed fetch and prefetch the pages behind them, and prints
// the resolved photo URLs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sternrassler/photofeed/internal/config"
	"github.com/Sternrassler/photofeed/pkg/client"
	"github.com/Sternrassler/photofeed/pkg/feed"
	"github.com/Sternrassler/photofeed/pkg/logging"
	"github.com/Sternrassler/photofeed/pkg/metrics"
	"github.com/Sternrassler/photofeed/pkg/pagination"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("photofeed failed")
	}
}

type options struct {
	configPath string
	rows       int
	refresh    bool
	retries    int
	wait       time.Duration
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("photofeed", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to config file (default ./photofeed.yaml or ~/.config/photofeed/config.yaml)")
	fs.IntVar(&opts.rows, "rows", 100, "number of rows to scroll through")
	fs.BoolVar(&opts.refresh, "refresh", false, "refresh the feed halfway through the scroll")
	fs.IntVar(&opts.retries, "retries", 1, "times a failed page is requested again")
	fs.DurationVar(&opts.wait, "wait", 30*time.Second, "how long to wait for the visible pages")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.rows < 0 {
		return options{}, fmt.Errorf("-rows must be >= 0 (got %d)", opts.rows)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.Setup(cfg.LoggerConfig())

	clientCfg := cfg.ClientConfig()
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		clientCfg.Redis = redisClient
	}

	photoClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer photoClient.Close()

	// the stats total counts every photo, so it only sizes the all-photos feed
	var counter feed.Counter
	if cfg.Feed.CountFromStats && cfg.Feed.Resource == client.PhotosPath {
		counter = feed.StatsCounter(photoClient)
	}

	tracker := newLoadTracker(logger)
	session, err := feed.New(
		cfg.SessionConfig(),
		feed.PhotoPages{Source: photoClient, Size: client.Size(cfg.Feed.PhotoSize)},
		counter,
		tracker,
	)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(runCtx) }()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMux(session),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	scrollErr := scroll(runCtx, session, tracker, opts)
	if scrollErr == nil {
		scrollErr = report(runCtx, session, opts.rows, out)
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return scrollErr
}

// scroll reports every row as visible, then keeps the pages behind the
// scrolled rows coming until they are loaded, out of retries, or the wait
// runs out.
func scroll(ctx context.Context, session *feed.Session, tracker *loadTracker, opts options) error {
	for row := 0; row < opts.rows; row++ {
		if _, err := session.Visible(ctx, row); err != nil {
			return err
		}
		if opts.refresh && row == opts.rows/2 {
			if err := session.Refresh(ctx); err != nil {
				return err
			}
		}
	}

	deadline := time.NewTimer(opts.wait)
	defer deadline.Stop()

	for {
		snap, err := session.Snapshot(ctx)
		if err != nil {
			return err
		}
		pending := pendingPages(snap, opts.rows)
		if len(pending) == 0 && snap.InFlight == 0 {
			return nil
		}

		exhausted := true
		for _, page := range pending {
			if tracker.failures(snap.Generation, page) > opts.retries {
				continue
			}
			exhausted = false
			if _, err := session.Visible(ctx, page*snap.PageSize); err != nil {
				return err
			}
		}
		if exhausted && snap.InFlight == 0 {
			return nil
		}

		select {
		case <-tracker.changed():
		case <-time.After(100 * time.Millisecond):
		case <-deadline.C:
			log.Warn().Ints("pending", pending).Msg("Gave up waiting for pages")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pendingPages returns the pages under the first rows that are not loaded.
func pendingPages(snap feed.Snapshot, rows int) []int {
	if rows > snap.Count {
		rows = snap.Count
	}
	if rows == 0 {
		return nil
	}
	loaded := make(map[int]bool, len(snap.LoadedPages))
	for _, page := range snap.LoadedPages {
		loaded[page] = true
	}

	var pending []int
	last := (rows - 1) / snap.PageSize
	for page := 0; page <= last; page++ {
		if !loaded[page] {
			pending = append(pending, page)
		}
	}
	return pending
}

// report prints one line per scrolled row and a summary.
func report(ctx context.Context, session *feed.Session, rows int, out io.Writer) error {
	snap, err := session.Snapshot(ctx)
	if err != nil {
		return err
	}
	if rows > snap.Count {
		rows = snap.Count
	}

	loaded := 0
	for i := 0; i < rows; i++ {
		item, ok, err := session.Item(ctx, i)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "%4d  <not loaded>\n", i)
			continue
		}
		loaded++
		fmt.Fprintf(out, "%4d  %s\n", i, item)
	}
	fmt.Fprintf(out, "loaded %d/%d rows (count %d, generation %d)\n", loaded, rows, snap.Count, snap.Generation)
	return nil
}

// loadTracker observes the feed. It runs on the session goroutine and is
// read from the scroll loop.
type loadTracker struct {
	mu     sync.Mutex
	failed map[failureKey]int
	notify chan struct{}
	logger zerolog.Logger
}

// failureKey scopes failure counts to a generation so a refresh starts over.
type failureKey struct {
	generation uint64
	page       int
}

func newLoadTracker(logger zerolog.Logger) *loadTracker {
	return &loadTracker{
		failed: make(map[failureKey]int),
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

func (t *loadTracker) OnEvent(e pagination.Event) {
	switch ev := e.(type) {
	case pagination.PageFailed:
		t.mu.Lock()
		for key := range t.failed {
			if key.generation < ev.Generation {
				delete(t.failed, key)
			}
		}
		t.failed[failureKey{generation: ev.Generation, page: ev.Page}]++
		t.mu.Unlock()
	case pagination.TotalCountResolved:
		t.logger.Debug().Int("count", ev.Count).Msg("Feed size known")
	}

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *loadTracker) failures(generation uint64, page int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed[failureKey{generation: generation, page: page}]
}

func (t *loadTracker) changed() <-chan struct{} {
	return t.notify
}

func newMux(session *feed.Session) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/feed", snapshotHandler(session))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// snapshotHandler serves the feed state as JSON.
func snapshotHandler(session *feed.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snap, err := session.Snapshot(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("feed unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"count":          snap.Count,
			"page_size":      snap.PageSize,
			"count_resolved": snap.CountResolved,
			"loaded_pages":   snap.LoadedPages,
			"in_flight":      snap.InFlight,
			"generation":     snap.Generation,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to write feed snapshot")
		}
	}
}
