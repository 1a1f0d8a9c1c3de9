package models

import (
	"time"

	"github.com/google/uuid"
)

// UserAccount is a marketplace user. Only the fields the claim pipeline reads
// are mapped.
type UserAccount struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username          string    `gorm:"column:username;not null"`
	Email             string    `gorm:"column:email;not null"`
	Language          string    `gorm:"column:language;not null;default:'en-US'"`
	AlgorandAccountID uuid.UUID `gorm:"column:algorand_account_id;type:uuid;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserAccount) TableName() string { return "user_accounts" }

// AlgorandAccount is a custodial account. EncryptedKey belongs exclusively to
// the owning user account.
type AlgorandAccount struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Address               string     `gorm:"column:address;not null"`
	EncryptedKey          string     `gorm:"column:encrypted_key;not null"`
	CreationTransactionID *uuid.UUID `gorm:"column:creation_transaction_id;type:uuid"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (AlgorandAccount) TableName() string { return "algorand_accounts" }
