package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling flows.
type SchedulingMetrics struct {
	outcomesTotal   *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	lockBypass      prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "outcomes_total",
			Help:      "Booking and reschedule results by outcome kind",
		}, []string{"operation", "outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool invocations from the conversational layer",
		}, []string{"tool", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		lockBypass: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "slot_lock_bypass_total",
			Help:      "Writes that ran without the Redis slot lock because Redis failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomesTotal, m.toolCallsTotal, m.requestDuration, m.lockBypass)
	return m
}

func (m *SchedulingMetrics) ObserveOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *SchedulingMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveLockBypass() {
	if m == nil {
		return
	}
	m.lockBypass.Inc()
}
