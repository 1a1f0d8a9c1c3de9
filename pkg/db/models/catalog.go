package models

import (
	"time"

	"github.com/google/uuid"
)

// CollectibleTemplate is CMS content synced upstream; one row per template.
type CollectibleTemplate struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	UniqueCode    string    `gorm:"column:unique_code;not null"`
	TotalEditions int       `gorm:"column:total_editions;not null"`
	ImageURL      string    `gorm:"column:image_url;not null"`
	AssetURL      *string   `gorm:"column:asset_url"`
	MetadataHash  *string   `gorm:"column:metadata_hash"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CollectibleTemplate) TableName() string { return "collectible_templates" }

// PackTemplate holds the localized pack title, keyed by template and language.
type PackTemplate struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Language  string    `gorm:"column:language;primaryKey"`
	Title     string    `gorm:"column:title;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PackTemplate) TableName() string { return "pack_templates" }
