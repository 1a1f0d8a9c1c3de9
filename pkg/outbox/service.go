package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

const eventAggregateConstraint = "ux_outbox_events_event_aggregate"

var (
	errTxRequired = errors.New("transaction required")
	// ErrInvalidEvent is wrapped by Emit when an event is rejected before
	// anything is written.
	ErrInvalidEvent = errors.New("invalid outbox event")
)

// DomainEvent is what callers hand to Emit. AggregateType may be left empty;
// it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// validatable payloads are checked before they are stored.
type validatable interface {
	Validate() error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo: repo,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) normalize(event *DomainEvent) error {
	want := event.EventType.Aggregate()
	switch {
	case want == "":
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.EventType)
	case event.AggregateType == "":
		event.AggregateType = want
	case event.AggregateType != want:
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidEvent, event.EventType, want, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("%w: %s without aggregate id", ErrInvalidEvent, event.EventType)
	}
	if v, ok := event.Data.(validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %s payload: %v", ErrInvalidEvent, event.EventType, err)
		}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	return nil
}

func buildRow(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:     event.Version,
		EventID:     uuid.NewString(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt,
		Actor:       event.Actor,
		Data:        data,
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       encoded,
		CreatedAt:     event.OccurredAt,
	}, envelope, nil
}

// Emit stores the event inside tx so it commits or rolls back with the
// domain write that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if err := s.normalize(&event); err != nil {
		return err
	}
	row, envelope, err := buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists emits at most one event per (event type, aggregate). A
// concurrent writer losing the unique-index race counts as already emitted.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if err := s.normalize(&event); err != nil {
		return err
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, eventAggregateConstraint) {
		return nil
	}
	return err
}

// Exists reports, reading through tx, whether an event for (event type,
// aggregate) was already stored.
func (s *Service) Exists(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error) {
	return s.repo.ExistsTx(tx, eventType, aggregateType, aggregateID)
}
