package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox dispatch outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics records outbox publisher activity.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of one publish batch in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, batch)
	return &OutboxMetrics{events: events, batch: batch}
}

func (o *OutboxMetrics) IncEvent(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (o *OutboxMetrics) ObserveBatch(duration time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(duration.Seconds())
}
