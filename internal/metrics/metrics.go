// Package metrics holds the Prometheus collectors reported by the planner and
// the HTTP surface.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"daylife/internal/model"
)

const namespace = "daylife"

// Metrics exposes Prometheus collectors that report scheduler activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	normalizations *prometheus.CounterVec
	warnings       *prometheus.CounterVec
	exports        *prometheus.CounterVec
	imports        *prometheus.CounterVec
	modelDuration  *prometheus.HistogramVec
	cacheRequests  *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors already registered under the same name are reused; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		normalizations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "normalizations_total",
			Help:      "Normalization runs by outcome (ok or the error kind).",
		}, []string{"outcome"})),
		warnings: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "warnings_total",
			Help:      "Warnings emitted while normalizing, by kind.",
		}, []string{"kind"})),
		exports: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "exports_total",
			Help:      "Calendar exports by outcome.",
		}, []string{"outcome"})),
		imports: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "imports_total",
			Help:      "Calendar imports by outcome.",
		}, []string{"outcome"})),
		modelDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of model completion requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"status"})),
		cacheRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "cache_requests_total",
			Help:      "Generation cache lookups by result (hit or miss).",
		}, []string{"result"})),
		refreshes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "subscription_refreshes_total",
			Help:      "Subscription fetches performed by the refresh job, by outcome.",
		}, []string{"outcome"})),
		httpRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"})),
		httpDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Outcome labels an operation result: "ok", the core error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := model.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// ObserveNormalization records one normalizer run and its warnings.
func (m *Metrics) ObserveNormalization(warnings []model.Warning, err error) {
	if m == nil {
		return
	}
	m.normalizations.WithLabelValues(Outcome(err)).Inc()
	for _, w := range warnings {
		m.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}

func (m *Metrics) ObserveExport(err error) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) ObserveImport(err error) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(Outcome(err)).Inc()
}

// ObserveModelRequest records the latency of one completion request.
func (m *Metrics) ObserveModelRequest(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.modelDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveCache records a generation cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(Outcome(err)).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
