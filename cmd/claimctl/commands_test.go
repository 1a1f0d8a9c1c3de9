package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/db/dbtest"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/outbox"
)

func newQueue(t *testing.T) (*queue.Client, queue.Repository) {
	t.Helper()
	repo := queue.NewRepository(dbtest.Open(t).DB())
	client, err := queue.NewClient(repo, enums.QueueClaimPack)
	require.NoError(t, err)
	return client, repo
}

func runJSON(t *testing.T, jobs *queue.Client, args ...string) jobOutput {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, (&app{jobs: jobs}).run(context.Background(), args, &out))
	var decoded jobOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	return decoded
}

func TestEnqueueIsIdempotentPerPack(t *testing.T) {
	jobs, _ := newQueue(t)
	packID := uuid.NewString()

	first := runJSON(t, jobs, "enqueue", "-pack", packID, "-user", uuid.NewString())
	require.NotNil(t, first.Created)
	assert.True(t, *first.Created)
	assert.Equal(t, packID, first.PackID)
	assert.Equal(t, enums.JobStatusQueued, first.Status)

	second := runJSON(t, jobs, "enqueue", "-pack", packID)
	require.NotNil(t, second.Created)
	assert.False(t, *second.Created)
	assert.Equal(t, first.ID, second.ID)
}

func TestStatusReportsJob(t *testing.T) {
	jobs, _ := newQueue(t)
	packID := uuid.NewString()
	created := runJSON(t, jobs, "enqueue", "-pack", packID)

	status := runJSON(t, jobs, "status", "-pack", packID)
	assert.Nil(t, status.Created)
	assert.Equal(t, created.ID, status.ID)
	assert.JSONEq(t, `{"packId":"`+packID+`"}`, string(status.Payload))
}

func TestStatusUnknownPackIsNotFound(t *testing.T) {
	jobs, _ := newQueue(t)
	err := (&app{jobs: jobs}).run(context.Background(), []string{"status", "-pack", uuid.NewString()}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	ctx := context.Background()
	jobs, repo := newQueue(t)
	created := runJSON(t, jobs, "enqueue", "-pack", uuid.NewString())

	job, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	now := time.Now().UTC()
	ok, err := repo.Lease(ctx, *job, "w", now.Add(time.Minute), now)
	require.NoError(t, err)
	require.True(t, ok)

	err = (&app{jobs: jobs}).run(ctx, []string{"retry", "-job", created.ID.String()}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	_, err = repo.Fail(ctx, created.ID, "w", now, "boom")
	require.NoError(t, err)

	retried := runJSON(t, jobs, "retry", "-job", created.ID.String())
	assert.Equal(t, enums.JobStatusQueued, retried.Status)
	assert.Zero(t, retried.Attempts)
	assert.Nil(t, retried.FailedAt)
}

func TestInputValidation(t *testing.T) {
	jobs, _ := newQueue(t)
	cases := map[string][]string{
		"no command":      nil,
		"unknown command": {"purge"},
		"missing pack":    {"enqueue"},
		"bad pack":        {"status", "-pack", "not-a-uuid"},
		"bad user":        {"enqueue", "-pack", uuid.NewString(), "-user", "x"},
		"missing job":     {"retry"},
		"unknown flag":    {"retry", "-pack", uuid.NewString()},
		"bad event":       {"dlq", "-event", "nope"},
		"huge limit":      {"dlq", "-limit", "100000"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			err := (&app{jobs: jobs}).run(context.Background(), args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestDLQListsAndFindsEntries(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())
	ctx := context.Background()

	eventID := uuid.New()
	msg := "topic missing"
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPackClaimed,
			AggregateType: enums.AggregatePack,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
			AttemptCount:  1,
			FailedAt:      time.Now().UTC(),
		})
	}))
	cli := &app{dlq: dlq}

	var out bytes.Buffer
	require.NoError(t, cli.run(ctx, []string{"dlq"}, &out))
	var listed []dlqOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, eventID, listed[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, listed[0].Reason)

	out.Reset()
	require.NoError(t, cli.run(ctx, []string{"dlq", "-event", eventID.String()}, &out))
	assert.Contains(t, out.String(), "topic missing")

	err := cli.run(ctx, []string{"dlq", "-event", uuid.NewString()}, &bytes.Buffer{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
