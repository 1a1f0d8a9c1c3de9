package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/outbox/payloads"
)

// Payload is implemented by every typed event body the publisher accepts.
type Payload interface {
	Validate() error
	// Aggregate is the id the payload is about; it must match the row's
	// aggregate_id.
	Aggregate() uuid.UUID
}

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	NewPayload    func() Payload
}

// ResolvedEvent is a decoded, validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    Payload
}

// ErrUnknownEvent is wrapped by Resolve when no descriptor is registered
// for an event type.
var ErrUnknownEvent = errors.New("unsupported event type")

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	descriptors := []EventDescriptor{
		{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			Topic:         cfg.NotificationTopic,
			NewPayload:    func() Payload { return &payloads.NotificationRequestedEvent{} },
		},
		{
			EventType:     enums.EventPackClaimed,
			AggregateType: enums.AggregatePack,
			Topic:         cfg.PackTopic,
			NewPayload:    func() Payload { return &payloads.PackClaimedEvent{} },
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		if desc.Topic == "" {
			return nil, fmt.Errorf("topic for %s is required", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve decodes the row's envelope and payload and checks that both agree
// with the row. Every failure is non-retryable: the stored bytes never change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w %s", ErrUnknownEvent, event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.NewPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if err := payload.Validate(); err != nil {
		return nil, nonRetryable("invalid %s payload: %w", event.EventType, err)
	}
	if payload.Aggregate() != event.AggregateID {
		return nil, nonRetryable("%s payload is about %s, row aggregate is %s", event.EventType, payload.Aggregate(), event.AggregateID)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
