package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

func TestDeliveryMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)

	m.IncOutcome(enums.DeliveryOutcomeSent)
	m.IncOutcome(enums.DeliveryOutcomeSent)
	m.IncOutcome(enums.DeliveryOutcomeSkippedInvalid)
	m.ObserveSend(120 * time.Millisecond)
	m.IncStorageError()

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected sent=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("skipped_invalid")); got != 1 {
		t.Fatalf("expected skipped_invalid=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.storageErrors); got != 1 {
		t.Fatalf("expected storage errors=1, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "newsletter_delivery_send_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one send observation")
	}
}

func TestDeliveryMetricsNilSafe(t *testing.T) {
	var m *DeliveryMetrics
	m.IncOutcome(enums.DeliveryOutcomeFailed)
	m.ObserveSend(time.Second)
	m.IncStorageError()

	unregistered := NewDeliveryMetrics(nil)
	unregistered.IncOutcome(enums.DeliveryOutcomeFailed)
}
