package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and billing flows.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	gatewayTotal       *prometheus.CounterVec
	remindersTotal     prometheus.Counter
	autoRejectsTotal   prometheus.Counter
	webhookLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Total booking attempts",
		}, []string{"status"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "appointments",
			Name:      "cancellations_total",
			Help:      "Total cancellations by actor",
		}, []string{"cancelled_by", "fee_charged"}),
		gatewayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "gateway",
			Name:      "reconciliations_total",
			Help:      "Total gateway payment reconciliations by path and outcome",
		}, []string{"path", "outcome"}),
		remindersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "jobs",
			Name:      "reminders_sent_total",
			Help:      "Total appointment reminders sent",
		}),
		autoRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "jobs",
			Name:      "auto_rejects_total",
			Help:      "Total appointments auto-rejected for doctor non-response",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "gateway",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of gateway callback processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.cancellationsTotal, m.gatewayTotal,
		m.remindersTotal, m.autoRejectsTotal, m.webhookLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveCancellation(cancelledBy string, feeCharged bool) {
	if m == nil {
		return
	}
	label := "false"
	if feeCharged {
		label = "true"
	}
	m.cancellationsTotal.WithLabelValues(cancelledBy, label).Inc()
}

func (m *SchedulingMetrics) ObserveGateway(path, outcome string) {
	if m == nil {
		return
	}
	m.gatewayTotal.WithLabelValues(path, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveReminder() {
	if m == nil {
		return
	}
	m.remindersTotal.Inc()
}

func (m *SchedulingMetrics) ObserveAutoReject() {
	if m == nil {
		return
	}
	m.autoRejectsTotal.Inc()
}

func (m *SchedulingMetrics) ObserveWebhookLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(outcome).Observe(seconds)
}
