package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packclaim/pkg/db/dbtest"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t).DB())
	client, err := NewClient(repo, enums.QueueClaimPack)
	require.NoError(t, err)
	client.clock = func() time.Time { return testNow }
	return client, repo
}

func TestClientEnqueueReturnsExistingJob(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	first, created, err := client.Enqueue(ctx, "pack-1", json.RawMessage(`{"packId":"pack-1"}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.JobStatusQueued, first.Status)

	again, created, err := client.Enqueue(ctx, "pack-1", json.RawMessage(`{"packId":"pack-1","step":"x"}`))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.JSONEq(t, `{"packId":"pack-1"}`, string(again.Payload))

	_, _, err = client.Enqueue(ctx, "", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestClientStatus(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	_, err := client.Status(ctx, "pack-1")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	job, _, err := client.Enqueue(ctx, "pack-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	found, err := client.Status(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)
}

func TestClientRetry(t *testing.T) {
	ctx := context.Background()
	client, repo := newTestClient(t)

	_, err := client.Retry(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	job, _, err := client.Enqueue(ctx, "pack-1", json.RawMessage(`{"packId":"pack-1","step":"notify_pack_owner"}`))
	require.NoError(t, err)

	_, err = client.Retry(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	ok, err := repo.Lease(ctx, *job, "w", testNow.Add(time.Minute), testNow)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = repo.Fail(ctx, job.ID, "w", testNow, "fatal")
	require.NoError(t, err)

	retried, err := client.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusQueued, retried.Status)
	assert.Zero(t, retried.Attempts)
	assert.JSONEq(t, `{"packId":"pack-1","step":"notify_pack_owner"}`, string(retried.Payload))
}
