// Package metrics exposes Prometheus collectors for the novelbind service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs, labeled by terminal status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novelbind_jobs_total",
		Help: "Total number of jobs that reached a terminal status.",
	}, []string{"status"})

	// ChaptersTotal counts chapter fetch outcomes, labeled by site and outcome.
	ChaptersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novelbind_chapters_total",
		Help: "Total number of chapter fetches that reached a terminal outcome.",
	}, []string{"site", "outcome"})

	// RetriesTotal counts scheduled chapter re-enqueues.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novelbind_chapter_retries_total",
		Help: "Total number of chapter fetch retries scheduled.",
	})

	// RenderSessionsHeld tracks currently leased render sessions.
	RenderSessionsHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novelbind_render_sessions_held",
		Help: "Number of render sessions currently leased from the pool.",
	})

	// FetchDurationSeconds observes chapter fetch latency per site.
	FetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novelbind_chapter_fetch_duration_seconds",
		Help:    "Histogram of chapter fetch latencies, labeled by site.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"site"})
)

// ObserveFetch records one chapter fetch latency sample.
func ObserveFetch(site string, d time.Duration) {
	FetchDurationSeconds.WithLabelValues(site).Observe(d.Seconds())
}
