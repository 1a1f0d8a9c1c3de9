package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

// Client is the producer and operator side of a queue.
type Client struct {
	repo  Repository
	queue enums.QueueName
	clock func() time.Time
}

func NewClient(repo Repository, queue enums.QueueName) (*Client, error) {
	if repo == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	if !queue.IsValid() {
		return nil, fmt.Errorf("unknown queue %q", queue)
	}
	return &Client{
		repo:  repo,
		queue: queue,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enqueue stores a job for dedupeKey. When one already exists it is returned
// untouched and created is false.
func (c *Client) Enqueue(ctx context.Context, dedupeKey string, payload json.RawMessage) (*models.Job, bool, error) {
	if dedupeKey == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "dedupe key required")
	}
	now := c.clock()
	job := &models.Job{
		ID:        uuid.New(),
		Queue:     c.queue,
		DedupeKey: dedupeKey,
		Payload:   payload,
		Status:    enums.JobStatusQueued,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := c.repo.Enqueue(ctx, job)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue job")
	}
	return job, created, nil
}

// Status returns the job stored for dedupeKey.
func (c *Client) Status(ctx context.Context, dedupeKey string) (*models.Job, error) {
	job, err := c.repo.FindByDedupeKey(ctx, c.queue, dedupeKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load job")
	}
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	return job, nil
}

// Retry re-queues a failed job. The payload, and with it the step cursor, is
// left as the last run saved it.
func (c *Client) Retry(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	rows, err := c.repo.Requeue(ctx, id, c.clock())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue job")
	}
	job, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load job")
	}
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	if rows == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "job is %s, only failed jobs can be retried", job.Status)
	}
	return job, nil
}
