package metrics

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes recorded by the transaction ledger.
const (
	SubmitAccepted        = "accepted"
	SubmitAlreadyInLedger = "already_in_ledger"
	SubmitDead            = "dead"
	SubmitRejected        = "rejected"
	SubmitSkipped         = "skipped"
)

// TransactionMetrics counts blockchain submissions and confirmations.
type TransactionMetrics struct {
	submissions   *prometheus.CounterVec
	confirmations prometheus.Counter
	failures      prometheus.Counter
}

// NewTransactionMetrics registers the transaction metrics on the provided registerer.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	if reg == nil {
		return &TransactionMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "algorand_submissions_total",
		Help: "Transaction group submissions by outcome.",
	}, []string{"outcome"})
	confirmations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "algorand_groups_confirmed_total",
		Help: "Transaction groups recorded as confirmed.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "algorand_groups_failed_total",
		Help: "Transaction groups recorded as failed.",
	})
	reg.MustRegister(submissions, confirmations, failures)
	return &TransactionMetrics{
		submissions:   submissions,
		confirmations: confirmations,
		failures:      failures,
	}
}

func (m *TransactionMetrics) IncSubmission(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *TransactionMetrics) IncConfirmed() {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.Inc()
}

func (m *TransactionMetrics) IncFailed() {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Inc()
}
