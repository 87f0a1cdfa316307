// Package metrics exposes Prometheus counters for document fetches, loader
// cache hits and repository loads.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/wftemplates/internal/loader"
	"github.com/me/wftemplates/pkg/model"
)

const namespace = "wfrepo"

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	fetches     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	cacheHits   prometheus.Counter
	loads       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	templates   prometheus.Gauge
	lastLoad    prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Documents fetched, by URI scheme.",
		}, []string{"scheme"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed document fetches, by URI scheme.",
		}, []string{"scheme"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_cache_hits_total",
			Help:      "Resources served from a loader cache.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Repository loads, by resulting state.",
		}, []string{"state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Templates skipped or rejected during loads, by failure kind.",
		}, []string{"kind"}),
		templates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "templates",
			Help:      "Templates currently served.",
		}),
		lastLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_load_timestamp_seconds",
			Help:      "Completion time of the most recent repository load.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches, m.fetchErrors, m.cacheHits, m.loads, m.failures, m.templates, m.lastLoad,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Fetcher wraps f so every fetch is counted.
func (m *Metrics) Fetcher(f loader.Fetcher) loader.Fetcher {
	return loader.FetcherFunc(func(ctx context.Context, uri string) ([]byte, error) {
		scheme := schemeOf(uri)
		m.fetches.WithLabelValues(scheme).Inc()
		data, err := f.Fetch(ctx, uri)
		if err != nil {
			m.fetchErrors.WithLabelValues(scheme).Inc()
		}
		return data, err
	})
}

// LoaderOption counts cache hits of loaders it is passed to.
func (m *Metrics) LoaderOption() loader.Option {
	return loader.WithCacheHook(func(string) { m.cacheHits.Inc() })
}

// ObserveLoad records a finished load run and the resulting template count.
func (m *Metrics) ObserveLoad(run *model.LoadRun, served int) {
	m.loads.WithLabelValues(string(run.State)).Inc()
	for _, f := range run.Failures {
		m.failures.WithLabelValues(string(f.Kind)).Inc()
	}
	m.templates.Set(float64(served))
	if !run.FinishedAt.IsZero() {
		m.lastLoad.Set(float64(run.FinishedAt.Unix()))
	}
}

func schemeOf(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(uri[:i])
}

// SetTemplates sets the served template gauge.
func (m *Metrics) SetTemplates(n int) {
	m.templates.Set(float64(n))
}
