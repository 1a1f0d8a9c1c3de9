package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/packclaim/pkg/logger"
)

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	dlq := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, dlq)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
	if dlq.called != 1 || !dlq.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected dlq purged once at %s, got %d at %s", expectedCutoff, dlq.called, dlq.lastCutoff)
	}
}

func TestOutboxRetentionJobRunsDLQAfterOutboxFailure(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	dlq := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, dlq)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if dlq.called != 1 {
		t.Fatalf("expected dlq cleanup to still run, got %d calls", dlq.called)
	}
}

func TestOutboxRetentionJobWithoutDLQ(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, dlq *fakeOutboxRetentionRepo) *outboxRetentionJob {
	t.Helper()
	params := OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
	}
	if dlq != nil {
		params.DLQ = dlq
	}
	jobIface, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakeOutboxRetentionRepo) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakeOutboxRetentionRepo) record(cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}
