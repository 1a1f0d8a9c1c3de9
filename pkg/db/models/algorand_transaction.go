package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
)

// AlgorandTransactionGroup is the bookkeeping unit for transactions that are
// submitted and confirmed together.
type AlgorandTransactionGroup struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AlgorandTransactionGroup) TableName() string { return "algorand_transaction_groups" }

// AlgorandTransaction is one signed transaction. Address holds the network
// transaction id.
type AlgorandTransaction struct {
	ID                       uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Address                  string                          `gorm:"column:address;not null"`
	Status                   enums.AlgorandTransactionStatus `gorm:"column:status;type:algorand_transaction_status;not null"`
	GroupID                  *uuid.UUID                      `gorm:"column:group_id;type:uuid"`
	OrderIndex               *int                            `gorm:"column:order_index"`
	EncodedSignedTransaction *string                         `gorm:"column:encoded_signed_transaction"`
	Error                    *string                         `gorm:"column:error"`
	CreatedAt                time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}

func (AlgorandTransaction) TableName() string { return "algorand_transactions" }
