// Package notifications stores user notifications and hands them to delivery
// through the outbox.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/outbox/payloads"
)

// Request describes one notification for one user.
type Request struct {
	Type          enums.NotificationType
	UserAccountID uuid.UUID
	Variables     map[string]string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Outbox outboxEmitter
	Logger *logger.Logger
	Clock  func() time.Time
}

type Service struct {
	db     txRunner
	repo   Repository
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    clock,
	}, nil
}

// CreateNotification stores the notification and its delivery event in one
// transaction.
func (s *Service) CreateNotification(ctx context.Context, req Request) (*models.Notification, error) {
	var created *models.Notification
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.CreateNotificationTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateNotificationTx is CreateNotification inside the caller's transaction.
func (s *Service) CreateNotificationTx(ctx context.Context, tx *gorm.DB, req Request) (*models.Notification, error) {
	if !req.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid notification type %q", req.Type)
	}
	if req.UserAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user account id required")
	}
	vars := req.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode notification variables")
	}

	now := s.now()
	notification := &models.Notification{
		ID:            uuid.New(),
		UserAccountID: req.UserAccountID,
		Type:          req.Type,
		Status:        enums.NotificationStatusQueued,
		Variables:     encoded,
		CreatedAt:     now,
	}
	if err := s.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   notification.ID,
		Actor:         &outbox.ActorRef{UserID: req.UserAccountID},
		Data: payloads.NotificationRequestedEvent{
			NotificationID: notification.ID,
			UserAccountID:  req.UserAccountID,
			Type:           req.Type,
			Variables:      encoded,
		},
		Version:    1,
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit notification event: %w", err)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"notification_id":   notification.ID.String(),
		"notification_type": string(req.Type),
		"user_account_id":   req.UserAccountID.String(),
	})
	s.logg.Info(logCtx, "notification queued")
	return notification, nil
}

// PurgeOlderThan deletes notifications created before cutoff.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
