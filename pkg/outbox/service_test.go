package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/dbtest"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	ctx := context.Background()

	packID := uuid.New()
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventPackClaimed,
			AggregateType: enums.AggregatePack,
			AggregateID:   packID,
			Data:          map[string]string{"pack_id": packID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, packID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, enums.EventPackClaimed, envelope.EventType)
	assert.Equal(t, packID, envelope.AggregateID)
	assert.JSONEq(t, `{"pack_id":"`+packID.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	boom := errors.New("domain write failed")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventPackClaimed,
			AggregateType: enums.AggregatePack,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	err := svc.Emit(context.Background(), client.DB(), DomainEvent{
		EventType:     enums.OutboxEventType("bogus"),
		AggregateType: enums.AggregatePack,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitDerivesAndChecksAggregateType(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	packID := uuid.New()
	require.NoError(t, svc.Emit(ctx, client.DB(), DomainEvent{
		EventType:   enums.EventPackClaimed,
		AggregateID: packID,
		Data:        struct{}{},
	}))
	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row, "aggregate_id = ?", packID).Error)
	assert.Equal(t, enums.AggregatePack, row.AggregateType)

	err := svc.Emit(ctx, client.DB(), DomainEvent{
		EventType:     enums.EventPackClaimed,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
	})
	require.ErrorIs(t, err, ErrInvalidEvent)

	err = svc.Emit(ctx, client.DB(), DomainEvent{EventType: enums.EventPackClaimed})
	require.ErrorIs(t, err, ErrInvalidEvent)
}

type checkedPayload struct{ ok bool }

func (p checkedPayload) Validate() error {
	if !p.ok {
		return errors.New("not ok")
	}
	return nil
}

func TestEmitValidatesPayload(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	err := svc.Emit(ctx, client.DB(), DomainEvent{
		EventType:   enums.EventNotificationRequested,
		AggregateID: uuid.New(),
		Data:        checkedPayload{},
	})
	require.ErrorIs(t, err, ErrInvalidEvent)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, svc.Emit(ctx, client.DB(), DomainEvent{
		EventType:   enums.EventNotificationRequested,
		AggregateID: uuid.New(),
		Data:        checkedPayload{ok: true},
	}))
}

func TestEmitIfNotExistsDedupesPerAggregate(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	packID := uuid.New()
	for i := 0; i < 3; i++ {
		err := client.WithTx(ctx, func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(ctx, tx, DomainEvent{
				EventType:     enums.EventPackClaimed,
				AggregateType: enums.AggregatePack,
				AggregateID:   packID,
				Data:          struct{}{},
			})
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := insertEvent(t, client.DB(), now.Add(-time.Minute), 0)
	exhausted := insertEvent(t, client.DB(), now.Add(-2*time.Minute), 5)

	var fetched []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, fetched, 1)
	assert.Equal(t, fresh, fetched[0].ID)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.MarkFailedTx(tx, fresh, errors.New("publish timeout")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, exhausted, errors.New("gone"), 5)
	}))

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row, "id = ?", fresh).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "publish timeout", *row.LastError)
	assert.NotNil(t, row.LastAttemptAt)

	var parked models.OutboxEvent
	require.NoError(t, client.DB().First(&parked, "id = ?", exhausted).Error)
	assert.Equal(t, 5, parked.AttemptCount)
	assert.NotNil(t, parked.LastAttemptAt)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkPublishedTx(tx, fresh)
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	assert.Empty(t, fetched)

	deleted, err := repo.DeletePublishedBefore(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	client := dbtest.Open(t)
	dlq := NewDLQRepository(client.DB())
	ctx := context.Background()

	eventID := uuid.New()
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			FailedAt:      time.Now().UTC(),
		})
	}))

	found, err := dlq.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:     uuid.New(),
			EventType:   enums.EventPackClaimed,
			ErrorReason: enums.OutboxDLQErrorReason("bored"),
			FailedAt:    time.Now().UTC(),
		})
	})
	require.Error(t, err)
}

func insertEvent(t *testing.T, db *gorm.DB, createdAt time.Time, attempts int) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&row).Error)
	return row.ID
}
