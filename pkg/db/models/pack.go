package models

import (
	"time"

	"github.com/google/uuid"
)

// Pack is a claimable bundle of 1..16 collectibles.
type Pack struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TemplateID  uuid.UUID  `gorm:"column:template_id;type:uuid;not null"`
	OwnerID     *uuid.UUID `gorm:"column:owner_id;type:uuid"`
	ActiveBidID *uuid.UUID `gorm:"column:active_bid_id;type:uuid"`
	RedeemCode  *string    `gorm:"column:redeem_code"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Pack) TableName() string { return "packs" }
