package notifications

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

	"github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/db/dbtest"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/outbox/payloads"
)

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func newTestService(t *testing.T, client *db.Client, emitter outboxEmitter) *Service {
	t.Helper()
	if emitter == nil {
		emitter = outbox.NewService(outbox.NewRepository(client.DB()), nil)
	}
	svc, err := NewService(ServiceParams{
		DB:     client,
		Repo:   NewRepository(client.DB()),
		Outbox: emitter,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestCreateNotificationWritesRowAndEvent(t *testing.T) {
	client := dbtest.Open(t)
	svc := newTestService(t, client, nil)
	userID := uuid.New()

	created, err := svc.CreateNotification(context.Background(), Request{
		Type:          enums.NotificationTypeTransferSuccess,
		UserAccountID: userID,
		Variables:     map[string]string{"packTitle": "Genesis"},
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	var stored models.Notification
	require.NoError(t, client.DB().First(&stored, "id = ?", created.ID).Error)
	assert.Equal(t, enums.NotificationStatusQueued, stored.Status)
	assert.JSONEq(t, `{"packTitle":"Genesis"}`, string(stored.Variables))

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventNotificationRequested, events[0].EventType)
	assert.Equal(t, created.ID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, userID, payload.UserAccountID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, userID, envelope.Actor.UserID)
}

func TestCreateNotificationRollsBackWhenOutboxFails(t *testing.T) {
	client := dbtest.Open(t)
	svc := newTestService(t, client, failingEmitter{})

	_, err := svc.CreateNotification(context.Background(), Request{
		Type:          enums.NotificationTypeTransferSuccess,
		UserAccountID: uuid.New(),
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateNotificationValidatesInput(t *testing.T) {
	client := dbtest.Open(t)
	svc := newTestService(t, client, nil)

	_, err := svc.CreateNotification(context.Background(), Request{Type: "bogus", UserAccountID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.CreateNotification(context.Background(), Request{Type: enums.NotificationTypeTransferFailed})
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestPurgeOlderThan(t *testing.T) {
	client := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, client, nil)
	userID := uuid.New()

	svc.now = func() time.Time { return now.AddDate(0, 0, -100) }
	_, err := svc.CreateNotification(context.Background(), Request{Type: enums.NotificationTypeTransferSuccess, UserAccountID: userID})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	_, err = svc.CreateNotification(context.Background(), Request{Type: enums.NotificationTypeTransferFailed, UserAccountID: userID})
	require.NoError(t, err)

	deleted, err := svc.PurgeOlderThan(context.Background(), now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err := svc.repo.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeTransferFailed, rows[0].Type)
}
