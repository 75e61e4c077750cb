//go:build integration

package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/photofeed/internal/testutil"
	"github.com/Sternrassler/photofeed/pkg/client"
	"github.com/Sternrassler/photofeed/pkg/feed"
	"github.com/Sternrassler/photofeed/pkg/metrics"
	"github.com/Sternrassler/photofeed/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

// runningFeed is a session over the mock API plus the events it emitted.
type runningFeed struct {
	session *feed.Session
	events  chan pagination.Event
}

func startFeed(t *testing.T, mock *testutil.MockAPI, redisClient *redis.Client) *runningFeed {
	t.Helper()

	cfg := client.DefaultConfig("integration-key")
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	feedCfg := feed.DefaultConfig()
	feedCfg.Pagination.PageSize = 10
	feedCfg.Pagination.LookAheadMargin = 0

	rf := &runningFeed{events: make(chan pagination.Event, 128)}
	observer := pagination.ObserverFunc(func(e pagination.Event) {
		rf.events <- e
	})

	session, err := feed.New(feedCfg, feed.PhotoPages{Source: c, Size: client.SizeThumb}, feed.StatsCounter(c), observer)
	if err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}
	rf.session = session

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return rf
}

// waitLoaded waits until page is loaded in generation.
func (rf *runningFeed) waitLoaded(t *testing.T, page int, generation uint64) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-rf.events:
			switch ev := e.(type) {
			case pagination.PageLoaded:
				if ev.Page == page && ev.Generation == generation {
					return
				}
			case pagination.PageFailed:
				if ev.Page == page && ev.Generation == generation {
					t.Fatalf("page %d failed: %v", page, ev.Err)
				}
			}
		case <-timeout:
			t.Fatalf("page %d never loaded in generation %d", page, generation)
		}
	}
}

func (rf *runningFeed) item(t *testing.T, i int) string {
	t.Helper()
	item, ok, err := rf.session.Item(context.Background(), i)
	if err != nil {
		t.Fatalf("Item(%d) failed: %v", i, err)
	}
	if !ok {
		t.Fatalf("Item(%d) not loaded", i)
	}
	return item
}

// TestFeedFullFlow scrolls a feed backed by the shared Redis cache.
func TestFeedFullFlow(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI(45)
	defer mock.Close()

	rf := startFeed(t, mock, redisClient)
	rf.waitLoaded(t, 0, 0)

	ctx := context.Background()
	for _, row := range []int{10, 20, 30, 40} {
		if _, err := rf.session.Visible(ctx, row); err != nil {
			t.Fatalf("Visible(%d) failed: %v", row, err)
		}
		rf.waitLoaded(t, row/10, 0)
	}

	snap, err := rf.session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Count != 45 || !snap.CountResolved {
		t.Errorf("count = %d resolved=%v, want 45 resolved", snap.Count, snap.CountResolved)
	}
	if len(snap.LoadedPages) != 5 {
		t.Errorf("loaded pages = %v, want 5", snap.LoadedPages)
	}
	if got := rf.item(t, 44); got != mock.PhotoURL(44, "thumb") {
		t.Errorf("item 44 = %q, want %q", got, mock.PhotoURL(44, "thumb"))
	}
}

// TestFeedSharedCache checks that a second process revalidates pages the
// first one cached instead of downloading them again.
func TestFeedSharedCache(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI(60)
	defer mock.Close()

	first := startFeed(t, mock, redisClient)
	first.waitLoaded(t, 0, 0)

	if mock.ConditionalCount() != 0 {
		t.Fatalf("Conditional requests = %d before the second feed", mock.ConditionalCount())
	}

	second := startFeed(t, mock, redisClient)
	second.waitLoaded(t, 0, 0)

	if mock.ConditionalCount() != 1 {
		t.Errorf("Conditional requests = %d, want 1", mock.ConditionalCount())
	}
	if got := second.item(t, 3); got != mock.PhotoURL(3, "thumb") {
		t.Errorf("item 3 = %q, want %q", got, mock.PhotoURL(3, "thumb"))
	}
}

// TestFeedRefreshPicksUpNewContent checks that a refresh after an upload
// replaces the cached page content.
func TestFeedRefreshPicksUpNewContent(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI(60)
	defer mock.Close()

	rf := startFeed(t, mock, redisClient)
	rf.waitLoaded(t, 0, 0)
	before := rf.item(t, 0)

	mock.Bump()
	if err := rf.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	rf.waitLoaded(t, 0, 1)

	after := rf.item(t, 0)
	if after == before {
		t.Errorf("item 0 unchanged after refresh: %q", after)
	}
	if after != mock.PhotoURL(0, "thumb") {
		t.Errorf("item 0 = %q, want %q", after, mock.PhotoURL(0, "thumb"))
	}
}

// TestMetricsExposed checks that a feed run shows up on the metrics endpoint.
func TestMetricsExposed(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI(20)
	defer mock.Close()

	rf := startFeed(t, mock, redisClient)
	rf.waitLoaded(t, 0, 0)

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"photofeed_page_fetches_total",
		"photofeed_api_requests_total",
		"photofeed_cache_misses_total",
		"photofeed_ratelimit_remaining",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metric %s not exposed", name)
		}
	}
}
