// Package metrics exposes Prometheus collectors for fetch attempts, discovered
// URLs, task outcomes, extracted fields and run duration.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the crawler's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts *prometheus.CounterVec
	Tasks         *prometheus.CounterVec
	Discovered    *prometheus.CounterVec
	Fields        *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawl_fetch_attempts_total",
				Help: "Fetch attempts, labeled by outcome and HTTP status code.",
			},
			[]string{"status", "code"},
		),
		Tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawl_tasks_total",
				Help: "Detail page tasks, labeled by terminal state.",
			},
			[]string{"state"},
		),
		Discovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawl_discovered_urls_total",
				Help: "Candidate URLs accepted during discovery, labeled by strategy.",
			},
			[]string{"strategy"},
		),
		Fields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawl_extracted_fields_total",
				Help: "Fields present in accepted records, labeled by field and provenance.",
			},
			[]string{"field", "provenance"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadcrawl_run_duration_seconds",
				Help:    "Duration of whole crawl runs in seconds.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
	m.registry.MustRegister(
		m.FetchAttempts,
		m.Tasks,
		m.Discovered,
		m.Fields,
		m.RunDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveAttempt(status models.FetchStatus, httpStatus int) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(status.String(), strconv.Itoa(httpStatus)).Inc()
}

func (m *Metrics) ObserveCandidate(c models.CandidateURL) {
	if m == nil {
		return
	}
	m.Discovered.WithLabelValues(c.DiscoveredVia.String()).Inc()
}

func (m *Metrics) ObserveTask(state models.TaskState) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) ObserveRecord(rec models.ExtractionRecord) {
	if m == nil {
		return
	}
	for f, via := range rec.ProvenanceMap() {
		m.Fields.WithLabelValues(string(f), via.String()).Inc()
	}
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Expose serves /metrics on addr until ctx is done.
func (m *Metrics) Expose(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Exposing Prometheus metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
