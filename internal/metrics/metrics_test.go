package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"daylife/internal/model"
)

func TestObserveNormalization(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveNormalization([]model.Warning{
		{Kind: model.WarnTruncated},
		{Kind: model.WarnTruncated},
		{Kind: model.WarnClipped},
	}, nil)
	m.ObserveNormalization(nil, &model.Error{Kind: model.KindNoValidBlocks})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.normalizations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.normalizations.WithLabelValues(string(model.KindNoValidBlocks))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.warnings.WithLabelValues(string(model.WarnTruncated))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues(string(model.WarnClipped))))
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := MustNewMetrics(reg)
	b := MustNewMetrics(reg)

	a.ObserveCache(true)
	b.ObserveCache(true)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.cacheRequests.WithLabelValues("hit")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, string(model.KindNothingToExport), Outcome(&model.Error{Kind: model.KindNothingToExport}))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveNormalization(nil, nil)
		m.ObserveExport(nil)
		m.ObserveImport(nil)
		m.ObserveModelRequest(time.Second, nil)
		m.ObserveCache(false)
		m.ObserveRefresh(nil)
		m.ObserveHTTP("/", "GET", 200, time.Millisecond)
	})
}

func TestObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	m.ObserveHTTP("/health", "GET", 200, 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}
