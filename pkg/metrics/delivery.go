package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

// DeliveryMetrics tracks newsletter delivery attempts made by the worker pool.
type DeliveryMetrics struct {
	outcomes      *prometheus.CounterVec
	sendDuration  prometheus.Histogram
	storageErrors prometheus.Counter
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsletter_delivery_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})
	sendDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsletter_delivery_send_seconds",
		Help:    "Latency of email provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	storageErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsletter_delivery_storage_errors_total",
		Help: "Worker iterations aborted by a storage error.",
	})
	reg.MustRegister(outcomes, sendDuration, storageErrors)
	return &DeliveryMetrics{
		outcomes:      outcomes,
		sendDuration:  sendDuration,
		storageErrors: storageErrors,
	}
}

func (d *DeliveryMetrics) IncOutcome(outcome enums.DeliveryOutcome) {
	if d == nil || d.outcomes == nil {
		return
	}
	d.outcomes.WithLabelValues(outcome.String()).Inc()
}

func (d *DeliveryMetrics) ObserveSend(duration time.Duration) {
	if d == nil || d.sendDuration == nil {
		return
	}
	d.sendDuration.Observe(duration.Seconds())
}

func (d *DeliveryMetrics) IncStorageError() {
	if d == nil || d.storageErrors == nil {
		return
	}
	d.storageErrors.Inc()
}
