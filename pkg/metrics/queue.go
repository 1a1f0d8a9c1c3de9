package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes reported by the queue worker.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// QueueMetrics records durable queue activity.
type QueueMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	steps    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewQueueMetrics registers the queue metrics on the provided registerer.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	if reg == nil {
		return &QueueMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_job_duration_seconds",
		Help:    "Duration of a single job run in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"queue"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_job_outcomes_total",
		Help: "Job runs by outcome.",
	}, []string{"queue", "outcome"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_step_completed_total",
		Help: "Completed job steps.",
	}, []string{"queue", "step"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_jobs_in_flight",
		Help: "Jobs currently leased by this worker.",
	})
	reg.MustRegister(duration, outcomes, steps, inFlight)
	return &QueueMetrics{
		duration: duration,
		outcomes: outcomes,
		steps:    steps,
		inFlight: inFlight,
	}
}

func (q *QueueMetrics) ObserveDuration(queue string, duration time.Duration) {
	if q == nil || q.duration == nil {
		return
	}
	q.duration.WithLabelValues(normalizeLabel(queue)).Observe(duration.Seconds())
}

func (q *QueueMetrics) IncOutcome(queue, outcome string) {
	if q == nil || q.outcomes == nil {
		return
	}
	q.outcomes.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Inc()
}

func (q *QueueMetrics) IncStep(queue, step string) {
	if q == nil || q.steps == nil {
		return
	}
	q.steps.WithLabelValues(normalizeLabel(queue), normalizeLabel(step)).Inc()
}

// TrackInFlight bumps the in-flight gauge and returns the matching decrement.
func (q *QueueMetrics) TrackInFlight() func() {
	if q == nil || q.inFlight == nil {
		return func() {}
	}
	q.inFlight.Inc()
	return q.inFlight.Dec
}
