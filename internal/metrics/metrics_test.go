package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSlotFetch("ok")
	m.ObserveSlotFetch("ok")
	m.ObserveSlotFetch("error")
	m.ObserveStaleResult()
	m.ObserveWrite("create", nil)
	m.ObserveWrite("create", errors.New("boom"))
	m.ObserveSubmission("partial")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotFetches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleResults))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflow.WithLabelValues("partial")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *SchedulingMetrics
	assert.NotPanics(t, func() {
		m.ObserveSlotFetch("ok")
		m.ObserveStaleResult()
		m.ObserveWrite("create", nil)
		m.ObserveSubmission("full")
		m.ObserveRemote("fetch_slots", "200", 0.1)
	})
}
