package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("created", 0.02)
	m.ObserveBooking("slot_taken", 0.01)
	m.ObserveBooking("created", 0.03)
	m.ObserveTransition("confirmed", "ok")
	m.ObserveNotification("booking", false)
	m.ObserveLockFallback()

	if got := counterValue(t, m.bookingsTotal.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created bookings, got %v", got)
	}
	if got := counterValue(t, m.notificationsTotal.WithLabelValues("booking", "failed")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}

	if got := counterValue(t, m.lockFallbacksTotal); got != 1 {
		t.Fatalf("expected 1 lock fallback, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 metric families, got %d", len(families))
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("created", 0.1)
	m.ObserveTransition("cancelled", "ok")
	m.ObserveNotification("reminder", true)
	m.ObserveLockFallback()
}
