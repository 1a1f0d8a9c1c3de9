package models

import (
	"time"

	"github.com/google/uuid"
)

// Collectible is one minted or to-be-minted NFT. Address is the on-chain asset
// index once the creation transaction is confirmed.
type Collectible struct {
	ID                          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TemplateID                  uuid.UUID  `gorm:"column:template_id;type:uuid;not null"`
	PackID                      *uuid.UUID `gorm:"column:pack_id;type:uuid"`
	OwnerID                     *uuid.UUID `gorm:"column:owner_id;type:uuid"`
	Edition                     int        `gorm:"column:edition;not null;default:1"`
	Address                     *int64     `gorm:"column:address"`
	CreationTransactionID       *uuid.UUID `gorm:"column:creation_transaction_id;type:uuid"`
	LatestTransferTransactionID *uuid.UUID `gorm:"column:latest_transfer_transaction_id;type:uuid"`
	ClaimedAt                   *time.Time `gorm:"column:claimed_at"`
	CreatedAt                   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Collectible) TableName() string { return "collectibles" }

// CollectibleOwnership is the append-only ownership history of a collectible.
type CollectibleOwnership struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CollectibleID uuid.UUID `gorm:"column:collectible_id;type:uuid;not null"`
	OwnerID       uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CollectibleOwnership) TableName() string { return "collectible_ownerships" }
