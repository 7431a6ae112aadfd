package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking flow.
type ConversationMetrics struct {
	inboundTotal   *prometheus.CounterVec
	bookingsTotal  *prometheus.CounterVec
	remindersTotal *prometheus.CounterVec
	extractLatency prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Total inbound patient messages",
		}, []string{"outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total booking attempts",
		}, []string{"result"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminder",
			Name:      "emitted_total",
			Help:      "Total appointment reminders emitted",
		}, []string{"status"}),
		extractLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "extract_latency_seconds",
			Help:      "Latency of field extraction calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.bookingsTotal, m.remindersTotal, m.extractLatency)
	return m
}

func (m *ConversationMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveReminder(status string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveExtractLatency(seconds float64) {
	if m == nil {
		return
	}
	m.extractLatency.Observe(seconds)
}
