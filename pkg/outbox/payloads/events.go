package payloads

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
)

// NotificationRequestedEvent asks downstream delivery to render and send a
// stored notification.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserAccountID  uuid.UUID              `json:"user_account_id"`
	Type           enums.NotificationType `json:"type"`
	Variables      json.RawMessage        `json:"variables"`
}

// PackClaimedEvent is emitted once per pack after every collectible reached
// its owner.
type PackClaimedEvent struct {
	PackID         uuid.UUID   `json:"pack_id"`
	OwnerID        uuid.UUID   `json:"owner_id"`
	CollectibleIDs []uuid.UUID `json:"collectible_ids"`
	ClaimedAt      time.Time   `json:"claimed_at"`
}

func (e NotificationRequestedEvent) Validate() error {
	switch {
	case e.NotificationID == uuid.Nil:
		return errors.New("notification_id is required")
	case e.UserAccountID == uuid.Nil:
		return errors.New("user_account_id is required")
	case !e.Type.IsValid():
		return fmt.Errorf("unknown notification type %q", e.Type)
	}
	return nil
}

func (e NotificationRequestedEvent) Aggregate() uuid.UUID { return e.NotificationID }

func (e PackClaimedEvent) Validate() error {
	switch {
	case e.PackID == uuid.Nil:
		return errors.New("pack_id is required")
	case e.OwnerID == uuid.Nil:
		return errors.New("owner_id is required")
	}
	return nil
}

func (e PackClaimedEvent) Aggregate() uuid.UUID { return e.PackID }
