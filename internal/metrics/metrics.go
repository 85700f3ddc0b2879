package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling workflow.
// A nil *SchedulingMetrics is valid and records nothing.
type SchedulingMetrics struct {
	slotFetches   *prometheus.CounterVec
	staleResults  prometheus.Counter
	writes        *prometheus.CounterVec
	workflow      *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petclinic",
			Subsystem: "scheduling",
			Name:      "slot_fetches_total",
			Help:      "Slot availability fetches by result (ok, empty, error)",
		}, []string{"result"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "petclinic",
			Subsystem: "scheduling",
			Name:      "stale_slot_results_total",
			Help:      "Slot fetch results discarded because a newer selection superseded them",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petclinic",
			Subsystem: "scheduling",
			Name:      "appointment_writes_total",
			Help:      "Appointment writes by operation and result",
		}, []string{"operation", "result"}),
		workflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petclinic",
			Subsystem: "scheduling",
			Name:      "record_submissions_total",
			Help:      "Clinical record submissions by outcome (full, partial, failure)",
		}, []string{"outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "petclinic",
			Subsystem: "clinicapi",
			Name:      "request_duration_seconds",
			Help:      "Latency of clinic API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotFetches, m.staleResults, m.writes, m.workflow, m.remoteLatency)
	return m
}

func (m *SchedulingMetrics) ObserveSlotFetch(result string) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveStaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *SchedulingMetrics) ObserveWrite(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(operation, result).Inc()
}

func (m *SchedulingMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.workflow.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveRemote(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteLatency.WithLabelValues(operation, status).Observe(seconds)
}
