package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestQueueMetricsExportsOutcomesAndSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueueMetrics(reg)
	m.ObserveDuration("claim-pack", 2*time.Second)
	m.IncOutcome("claim-pack", OutcomeRetried)
	m.IncStep("claim-pack", "mint_collectibles")
	done := m.TrackInFlight()
	done()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "queue_job_outcomes_total", "outcome", OutcomeRetried); err != nil || got != 1 {
		t.Fatalf("expected retried=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "queue_step_completed_total", "step", "mint_collectibles"); err != nil || got != 1 {
		t.Fatalf("expected step=1, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "queue_job_duration_seconds", "queue", "claim-pack"); err != nil || got != 2 {
		t.Fatalf("expected duration sum 2, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var q *QueueMetrics
	q.IncOutcome("q", OutcomeFailed)
	q.TrackInFlight()()

	tm := NewTransactionMetrics(nil)
	tm.IncSubmission(SubmitAccepted)
	tm.IncConfirmed()
	tm.IncFailed()
}

func TestTransactionMetricsCountsSubmissions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransactionMetrics(reg)
	m.IncSubmission(SubmitAlreadyInLedger)
	m.IncSubmission(SubmitAlreadyInLedger)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "algorand_submissions_total", "outcome", SubmitAlreadyInLedger); err != nil || got != 2 {
		t.Fatalf("expected 2 already-in-ledger submissions, got %f (%v)", got, err)
	}
}
