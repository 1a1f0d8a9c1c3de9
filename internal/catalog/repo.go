// Package catalog reads the CMS-synced template tables.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// Repository reads collectible and pack templates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CollectibleTemplatesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CollectibleTemplate, error)
	PackTemplate(ctx context.Context, id uuid.UUID, language string) (*models.PackTemplate, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CollectibleTemplatesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CollectibleTemplate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.CollectibleTemplate
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) PackTemplate(ctx context.Context, id uuid.UUID, language string) (*models.PackTemplate, error) {
	var row models.PackTemplate
	err := r.db.WithContext(ctx).
		Where("id = ? AND language = ?", id, language).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
