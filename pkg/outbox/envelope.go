package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
)

// ActorRef names the collector an event is about.
type ActorRef struct {
	UserID            uuid.UUID  `json:"userId"`
	AlgorandAccountID *uuid.UUID `json:"algorandAccountId,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive. EventType and AggregateID repeat the row so a subscriber sharing a
// topic can route without message attributes.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType"`
	AggregateID uuid.UUID             `json:"aggregateId"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Actor       *ActorRef             `json:"actor,omitempty"`
	Data        json.RawMessage       `json:"data"`
}
