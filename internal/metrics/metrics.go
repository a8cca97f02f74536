package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	lockFallbacksTotal prometheus.Counter
	bookingLatency     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by target status and outcome",
		}, []string{"status", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "telegram_total",
			Help:      "Telegram notices by kind and delivery status",
		}, []string{"kind", "status"}),
		lockFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "lock_fallbacks_total",
			Help:      "Bookings made without the Redis slot lock because Redis was unreachable",
		}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of booking requests",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.notificationsTotal, m.lockFallbacksTotal, m.bookingLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(status, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status, outcome).Inc()
}

func (m *BookingMetrics) ObserveNotification(kind string, delivered bool) {
	if m == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "delivered"
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) ObserveLockFallback() {
	if m == nil {
		return
	}
	m.lockFallbacksTotal.Inc()
}
