package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.IncEvent("pack_claimed", OutboxPublished)
	metrics.IncEvent("pack_claimed", OutboxPublished)
	metrics.IncEvent("notification_requested", OutboxDeadLettered)
	metrics.ObserveBatch(10 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "pack_claimed"); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "outcome", OutboxDeadLettered); err != nil {
		t.Fatalf("fetch dead lettered: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 dead lettered, got %f", got)
	}
}

func TestNilOutboxMetricsAreSafe(t *testing.T) {
	var metrics *OutboxMetrics
	metrics.IncEvent("x", OutboxRetried)
	metrics.ObserveBatch(time.Second)
	NewOutboxMetrics(nil).IncEvent("x", OutboxRetried)
}
