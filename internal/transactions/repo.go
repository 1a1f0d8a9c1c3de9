package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
)

// Repository persists transaction groups and their signed transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateGroup(ctx context.Context, group *models.AlgorandTransactionGroup) error
	CreateTransactions(ctx context.Context, rows []models.AlgorandTransaction) error
	LatestStatus(ctx context.Context, address string) (enums.AlgorandTransactionStatus, bool, error)
	MarkStatuses(ctx context.Context, addresses []string, status enums.AlgorandTransactionStatus, errMsg *string, now time.Time) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.AlgorandTransaction, error)
	ListGroupTransactions(ctx context.Context, groupID uuid.UUID) ([]models.AlgorandTransaction, error)
	DeleteGroup(ctx context.Context, groupID uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a transactions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateGroup(ctx context.Context, group *models.AlgorandTransactionGroup) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repositoryImpl) CreateTransactions(ctx context.Context, rows []models.AlgorandTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// LatestStatus returns the status of the most recently recorded row for the
// network transaction id.
func (r *repositoryImpl) LatestStatus(ctx context.Context, address string) (enums.AlgorandTransactionStatus, bool, error) {
	var row models.AlgorandTransaction
	err := r.db.WithContext(ctx).
		Select("status").
		Where("address = ?", address).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Status, true, nil
}

// MarkStatuses never moves a confirmed row.
func (r *repositoryImpl) MarkStatuses(ctx context.Context, addresses []string, status enums.AlgorandTransactionStatus, errMsg *string, now time.Time) (int64, error) {
	if len(addresses) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.AlgorandTransaction{}).
		Where("address IN ?", addresses).
		Where("status <> ?", enums.AlgorandTransactionStatusConfirmed).
		Updates(map[string]any{
			"status":     status,
			"error":      errMsg,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.AlgorandTransaction, error) {
	var row models.AlgorandTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListGroupTransactions returns the group's rows in submission order.
func (r *repositoryImpl) ListGroupTransactions(ctx context.Context, groupID uuid.UUID) ([]models.AlgorandTransaction, error) {
	var rows []models.AlgorandTransaction
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("order_index ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteGroup removes the group and its transactions. Rows referencing the
// transactions must be cleared first.
func (r *repositoryImpl) DeleteGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&models.AlgorandTransaction{})
	if result.Error != nil {
		return 0, result.Error
	}
	if err := r.db.WithContext(ctx).
		Where("id = ?", groupID).
		Delete(&models.AlgorandTransactionGroup{}).Error; err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}
