package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// Repository reads user accounts and their custodial blockchain accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUserAccount(ctx context.Context, id uuid.UUID) (*models.UserAccount, error)
	FindAlgorandAccount(ctx context.Context, id uuid.UUID) (*models.AlgorandAccount, error)
	LinkCreationTransaction(ctx context.Context, accountID, transactionID uuid.UUID) (int64, error)
	ClearCreationTransaction(ctx context.Context, accountID uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindUserAccount(ctx context.Context, id uuid.UUID) (*models.UserAccount, error) {
	var row models.UserAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) FindAlgorandAccount(ctx context.Context, id uuid.UUID) (*models.AlgorandAccount, error) {
	var row models.AlgorandAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LinkCreationTransaction sets the funding transaction only if none is
// recorded yet and reports how many rows changed.
func (r *repositoryImpl) LinkCreationTransaction(ctx context.Context, accountID, transactionID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AlgorandAccount{}).
		Where("id = ? AND creation_transaction_id IS NULL", accountID).
		Update("creation_transaction_id", transactionID)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) ClearCreationTransaction(ctx context.Context, accountID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.AlgorandAccount{}).
		Where("id = ?", accountID).
		Update("creation_transaction_id", nil).Error
}
