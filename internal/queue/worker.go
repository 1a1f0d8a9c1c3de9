package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/metrics"
)

const (
	defaultConcurrency   = 20
	defaultPollInterval  = time.Second
	defaultLeaseDuration = 5 * time.Minute
)

// WorkerParams wires a Worker. Zero-valued tunables fall back to defaults.
type WorkerParams struct {
	Repo          Repository
	Handler       Handler
	Queue         enums.QueueName
	Owner         string
	Concurrency   int
	PollInterval  time.Duration
	LeaseDuration time.Duration
	Policy        RetryPolicy
	Logger        *logger.Logger
	Metrics       *metrics.QueueMetrics
	Clock         func() time.Time
}

// Worker polls the jobs table, leases ready jobs and runs them through the
// handler with bounded concurrency.
type Worker struct {
	repo          Repository
	handler       Handler
	queue         enums.QueueName
	owner         string
	concurrency   int
	pollInterval  time.Duration
	leaseDuration time.Duration
	policy        RetryPolicy
	logg          *logger.Logger
	metrics       *metrics.QueueMetrics
	clock         func() time.Time

	inFlight atomic.Int64
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("queue handler required")
	}
	if !params.Queue.IsValid() {
		return nil, fmt.Errorf("unknown queue %q", params.Queue)
	}
	if params.Owner == "" {
		return nil, fmt.Errorf("lease owner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Concurrency <= 0 {
		params.Concurrency = defaultConcurrency
	}
	if params.PollInterval <= 0 {
		params.PollInterval = defaultPollInterval
	}
	if params.LeaseDuration <= 0 {
		params.LeaseDuration = defaultLeaseDuration
	}
	if params.Policy.DailyInterval <= 0 {
		params.Policy = DefaultRetryPolicy()
	}
	if params.Clock == nil {
		params.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{
		repo:          params.Repo,
		handler:       params.Handler,
		queue:         params.Queue,
		owner:         params.Owner,
		concurrency:   params.Concurrency,
		pollInterval:  params.PollInterval,
		leaseDuration: params.LeaseDuration,
		policy:        params.Policy,
		logg:          params.Logger,
		metrics:       params.Metrics,
		clock:         params.Clock,
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight jobs to settle.
func (w *Worker) Run(ctx context.Context) error {
	var group errgroup.Group
	group.SetLimit(w.concurrency)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logg.Info(ctx, fmt.Sprintf("queue worker started queue=%s owner=%s concurrency=%d", w.queue, w.owner, w.concurrency))
	for {
		if _, err := w.dispatch(ctx, &group); err != nil && ctx.Err() == nil {
			w.logg.Error(ctx, "queue poll failed", err)
		}
		select {
		case <-ctx.Done():
			_ = group.Wait()
			w.logg.Info(context.WithoutCancel(ctx), "queue worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases whatever is ready right now, runs it and waits for the
// results. It returns the number of jobs that ran.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	var group errgroup.Group
	group.SetLimit(w.concurrency)
	started, err := w.dispatch(ctx, &group)
	_ = group.Wait()
	return started, err
}

func (w *Worker) dispatch(ctx context.Context, group *errgroup.Group) (int, error) {
	free := w.concurrency - int(w.inFlight.Load())
	if free <= 0 {
		return 0, nil
	}
	now := w.clock()
	jobs, err := w.repo.ListReady(ctx, w.queue, now, free)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, job := range jobs {
		leased, err := w.repo.Lease(ctx, job, w.owner, now.Add(w.leaseDuration), now)
		if err != nil {
			return started, err
		}
		if !leased {
			continue
		}
		job.Status = enums.JobStatusActive
		job.Attempts++
		owner := w.owner
		job.LockedBy = &owner

		started++
		w.inFlight.Add(1)
		group.Go(func() error {
			defer w.inFlight.Add(-1)
			w.process(ctx, job)
			return nil
		})
	}
	return started, nil
}

func (w *Worker) process(ctx context.Context, job models.Job) {
	ctx = w.logg.WithJobID(ctx, job.ID.String())
	ctx = w.logg.WithField(ctx, "attempt", job.Attempts)
	done := w.metrics.TrackInFlight()
	defer done()
	start := time.Now()

	lease := &Lease{job: job, owner: w.owner, repo: w.repo}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var heartbeat sync.WaitGroup
	heartbeat.Add(1)
	go func() {
		defer heartbeat.Done()
		w.heartbeat(jobCtx, cancel, job)
	}()

	err := w.invoke(jobCtx, lease)
	if cause := context.Cause(jobCtx); errors.Is(cause, ErrLeaseLost) {
		err = ErrLeaseLost
	}
	cancel(nil)
	heartbeat.Wait()

	w.metrics.ObserveDuration(string(w.queue), time.Since(start))
	w.finish(context.WithoutCancel(ctx), lease, err, ctx.Err() != nil)
}

func (w *Worker) invoke(ctx context.Context, lease *Lease) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Newf(pkgerrors.CodeInternal, "job handler panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, lease)
}

func (w *Worker) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, job models.Job) {
	interval := w.leaseDuration / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows, err := w.repo.ExtendLease(ctx, job.ID, w.owner, w.clock().Add(w.leaseDuration))
			if err != nil {
				if ctx.Err() == nil {
					w.logg.Warn(ctx, fmt.Sprintf("lease heartbeat failed: %v", err))
				}
				continue
			}
			if rows == 0 {
				w.logg.Warn(ctx, "lease lost during heartbeat")
				cancel(ErrLeaseLost)
				return
			}
		}
	}
}

func (w *Worker) finish(ctx context.Context, lease *Lease, runErr error, shuttingDown bool) {
	job := lease.job
	now := w.clock()
	queue := string(w.queue)

	switch {
	case runErr == nil:
		rows, err := w.repo.Complete(ctx, job.ID, w.owner, now)
		if err != nil {
			w.logg.Error(ctx, "failed to complete job", err)
			return
		}
		if rows == 0 {
			w.logg.Warn(ctx, "job finished after its lease was lost")
			return
		}
		w.metrics.IncOutcome(queue, metrics.OutcomeCompleted)
		w.logg.Info(ctx, "job completed")

	case errors.Is(runErr, ErrLeaseLost):
		w.logg.Warn(ctx, "job abandoned after lease loss")

	case !pkgerrors.IsRetryable(runErr):
		rows, err := w.repo.Fail(ctx, job.ID, w.owner, now, runErr.Error())
		if err != nil {
			w.logg.Error(ctx, "failed to mark job failed", err)
			return
		}
		if rows == 0 {
			w.logg.Warn(ctx, "job failed after its lease was lost")
			return
		}
		w.metrics.IncOutcome(queue, metrics.OutcomeFailed)
		w.logg.Error(w.logg.WithFields(ctx, pkgerrors.Dump(runErr).Fields()), "job failed permanently", runErr)

	default:
		delay := w.policy.NextDelay(job.Attempts)
		if shuttingDown {
			delay = 0
		}
		runAt := now.Add(delay)
		rows, err := w.repo.Reschedule(ctx, job.ID, w.owner, runAt, runErr.Error())
		if err != nil {
			w.logg.Error(ctx, "failed to reschedule job", err)
			return
		}
		if rows == 0 {
			w.logg.Warn(ctx, "job errored after its lease was lost")
			return
		}
		w.metrics.IncOutcome(queue, metrics.OutcomeRetried)
		retryCtx := w.logg.WithFields(ctx, map[string]any{
			"retry_in": delay.String(),
			"run_at":   runAt,
			"error":    runErr.Error(),
		})
		w.logg.Warn(retryCtx, "job attempt failed; retry scheduled")
	}
}
