package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/photofeed/pkg/client"
	"github.com/Sternrassler/photofeed/pkg/logging"
)

// isolate runs the test in an empty directory with an empty home.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	if cfg.API != want.API {
		t.Errorf("API = %+v, want %+v", cfg.API, want.API)
	}
	if cfg.Feed != want.Feed {
		t.Errorf("Feed = %+v, want %+v", cfg.Feed, want.Feed)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Cache.MemoryEntries != 256 {
		t.Errorf("Metrics/Cache = %+v %+v", cfg.Metrics, cfg.Cache)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
api:
  access_key: file-key
  timeout: 5s
feed:
  resource: /search/photos?query=cats
  order_by: popular
  page_size: 30
  photo_size: thumb
redis:
  enabled: true
  addr: redis:6379
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.AccessKey != "file-key" || cfg.API.Timeout != 5*time.Second {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Feed.Resource != "/search/photos?query=cats" || cfg.Feed.OrderBy != "popular" || cfg.Feed.PageSize != 30 {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
	if cfg.Feed.LookAheadMargin != 10 {
		t.Errorf("unset key lost its default: LookAheadMargin = %d", cfg.Feed.LookAheadMargin)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if !cfg.Logging.Pretty || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_SearchPaths(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".config", "photofeed", "config.yaml"), "api:\n  access_key: home-key\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.AccessKey != "home-key" {
		t.Errorf("AccessKey = %q, want home-key", cfg.API.AccessKey)
	}

	// the working directory wins over home
	writeFile(t, filepath.Join(dir, "photofeed.yaml"), "api:\n  access_key: local-key\n")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.AccessKey != "local-key" {
		t.Errorf("AccessKey = %q, want local-key", cfg.API.AccessKey)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "photofeed.yaml")
	writeFile(t, path, "api:\n  access_key: file-key\nfeed:\n  page_size: 30\n")

	t.Setenv("PHOTOFEED_API_ACCESS_KEY", "env-key")
	t.Setenv("PHOTOFEED_FEED_LOOK_AHEAD_MARGIN", "5")
	t.Setenv("PHOTOFEED_FEED_FETCH_TIMEOUT", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.AccessKey != "env-key" {
		t.Errorf("AccessKey = %q, want env-key", cfg.API.AccessKey)
	}
	if cfg.Feed.PageSize != 30 || cfg.Feed.LookAheadMargin != 5 || cfg.Feed.FetchTimeout != 2*time.Second {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing explicit file accepted")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "api: [unclosed\n")
	if _, err := Load(bad); err == nil {
		t.Error("malformed file accepted")
	}

	wrongType := filepath.Join(dir, "type.yaml")
	writeFile(t, wrongType, "feed:\n  page_size: many\n")
	if _, err := Load(wrongType); err == nil {
		t.Error("non-numeric page size accepted")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.API.AccessKey = "key"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantMsg string
	}{
		{name: "missing access key", modify: func(c *Config) { c.API.AccessKey = "" }, wantMsg: "api.access_key"},
		{name: "zero attempts", modify: func(c *Config) { c.API.MaxAttempts = 0 }, wantMsg: "api.max_attempts"},
		{name: "zero page size", modify: func(c *Config) { c.Feed.PageSize = 0 }, wantMsg: "feed.page_size"},
		{name: "negative margin", modify: func(c *Config) { c.Feed.LookAheadMargin = -1 }, wantMsg: "look-ahead margin"},
		{name: "negative estimate", modify: func(c *Config) { c.Feed.InitialCountEstimate = -1 }, wantMsg: "initial count estimate"},
		{name: "unknown order", modify: func(c *Config) { c.Feed.OrderBy = "random" }, wantMsg: "feed.order_by"},
		{name: "unknown size", modify: func(c *Config) { c.Feed.PhotoSize = "huge" }, wantMsg: "feed.photo_size"},
		{name: "redis without addr", modify: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, wantMsg: "redis.addr"},
		{name: "unknown log level", modify: func(c *Config) { c.Logging.Level = "loud" }, wantMsg: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}

	cfg := valid()
	cfg.API.AccessKey = ""
	cfg.Feed.PhotoSize = "huge"
	if err := cfg.Validate(); !strings.Contains(err.Error(), "access_key") || !strings.Contains(err.Error(), "photo_size") {
		t.Errorf("Validate should report all problems, got %q", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.API.AccessKey = "key"
	cfg.API.MaxAttempts = 3
	cfg.Feed.OrderBy = "oldest"
	cfg.Feed.Resource = client.UserLikesPath("jane")
	cfg.Logging.Level = "warn"

	cc := cfg.ClientConfig()
	if cc.AccessKey != "key" || cc.AcceptVersion != "v1" || cc.Retry.MaxAttempts != 3 || cc.DefaultOrder != client.SortOldest {
		t.Errorf("ClientConfig = %+v", cc)
	}
	if cc.MemoryCacheSize != 256 || cc.Timeout != 15*time.Second {
		t.Errorf("ClientConfig cache/timeout = %d %v", cc.MemoryCacheSize, cc.Timeout)
	}

	sc := cfg.SessionConfig()
	if sc.Resource != "/users/jane/likes" {
		t.Errorf("Resource = %q", sc.Resource)
	}
	pc := sc.Pagination
	if pc.PageSize != 25 || pc.LookAheadMargin != 10 || pc.InitialCountEstimate != 200 || pc.MaxConcurrency != 4 || pc.Timeout != 15*time.Second {
		t.Errorf("Pagination = %+v", pc)
	}

	lc := cfg.LoggerConfig()
	if lc.Level != logging.LevelWarn || lc.Pretty {
		t.Errorf("LoggerConfig = %+v", lc)
	}
}
