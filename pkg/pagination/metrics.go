package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for page loading.
var (
	pageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photofeed_page_fetches_total",
		Help: "Page fetches by outcome (loaded, network, server, decode, stale)",
	}, []string{"outcome"})

	pagesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photofeed_pages_in_flight",
		Help: "Page fetches issued and not yet applied or cancelled",
	})

	staleCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photofeed_stale_completions_total",
		Help: "Completions discarded because they predate the last cancel",
	})

	pageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photofeed_page_fetch_duration_seconds",
		Help:    "Time from slot acquisition to fetch return",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	}, []string{"outcome"})
)
