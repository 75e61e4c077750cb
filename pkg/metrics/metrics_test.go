package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/Sternrassler/photofeed/pkg/pagination"
	_ "github.com/Sternrassler/photofeed/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler(t *testing.T) {
	probe := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photofeed_metrics_test_probe_total",
		Help: "Probe counter for the handler test",
	})
	if err := Registry.Register(probe); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer Registry.Unregister(probe)
	probe.Inc()

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, name := range []string{
		"photofeed_metrics_test_probe_total 1",
		"photofeed_pages_in_flight",
		"photofeed_stale_completions_total",
		"photofeed_ratelimit_remaining",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
