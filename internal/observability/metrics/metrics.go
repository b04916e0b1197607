package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking conversation.
type BookingMetrics struct {
	transitions     *prometheus.CounterVec
	sessionsStarted *prometheus.CounterVec
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	persistence     *prometheus.CounterVec
	inbound         *prometheus.CounterVec
	outbound        *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking state machine inputs by state and result",
		}, []string{"state", "result"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "booking",
			Name:      "sessions_started_total",
			Help:      "Booking sessions opened, by outcome",
		}, []string{"result"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Calls to the tenant API",
		}, []string{"endpoint", "status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agendmed",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of tenant API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		persistence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "bookings",
			Name:      "saves_total",
			Help:      "Confirmed booking saves by result (saved, deferred, retried)",
		}, []string{"result"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound chat messages by channel",
		}, []string{"channel"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendmed",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound replies by channel and status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.sessionsStarted, m.upstreamTotal, m.upstreamLatency, m.persistence, m.inbound, m.outbound)
	return m
}

func (m *BookingMetrics) ObserveTransition(state, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state, result).Inc()
}

func (m *BookingMetrics) ObserveSessionStart(result string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(result).Inc()
}

// ObserveUpstream records one tenant API call. status is "ok" or an error class.
func (m *BookingMetrics) ObserveUpstream(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(endpoint, status).Inc()
	m.upstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObservePersistence(result string) {
	if m == nil {
		return
	}
	m.persistence.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveInbound(channel string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(channel).Inc()
}

func (m *BookingMetrics) ObserveOutbound(channel string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.outbound.WithLabelValues(channel, status).Inc()
}
