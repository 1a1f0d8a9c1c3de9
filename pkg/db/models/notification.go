package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
)

// Notification is a request to tell a user something; delivery happens
// downstream of the outbox.
type Notification struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserAccountID uuid.UUID                `gorm:"column:user_account_id;type:uuid;not null"`
	Type          enums.NotificationType   `gorm:"column:type;type:notification_type;not null"`
	Status        enums.NotificationStatus `gorm:"column:status;not null"`
	Variables     json.RawMessage          `gorm:"column:variables;type:jsonb;not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
