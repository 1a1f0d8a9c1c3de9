package claimpack

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
)

// CollectibleTransfer is a collectible joined with the status of its latest
// transfer transaction.
type CollectibleTransfer struct {
	models.Collectible
	TransferStatus *enums.AlgorandTransactionStatus `gorm:"column:transfer_status"`
}

// Transferred reports whether the collectible reached ownerID on chain.
func (c CollectibleTransfer) Transferred(ownerID uuid.UUID) bool {
	return c.OwnerID != nil && *c.OwnerID == ownerID &&
		c.TransferStatus != nil && *c.TransferStatus == enums.AlgorandTransactionStatusConfirmed
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPack(ctx context.Context, id uuid.UUID) (*models.Pack, error)
	ListPackCollectibles(ctx context.Context, packID uuid.UUID) ([]models.Collectible, error)
	CountPackCollectibles(ctx context.Context, packID uuid.UUID) (int, error)
	ListPackTransfers(ctx context.Context, packID uuid.UUID) ([]CollectibleTransfer, error)
	FindCollectibleTransfer(ctx context.Context, id uuid.UUID) (*CollectibleTransfer, error)
	FindUserAccount(ctx context.Context, id uuid.UUID) (*models.UserAccount, error)
	FindAlgorandAccount(ctx context.Context, id uuid.UUID) (*models.AlgorandAccount, error)
	LinkCreationTransaction(ctx context.Context, collectibleID, transactionID uuid.UUID) (int64, error)
	ClearCreationTransactions(ctx context.Context, packID uuid.UUID) error
	SetAssetAddress(ctx context.Context, transactionAddress string, assetIndex int64) (int64, error)
	LinkTransfer(ctx context.Context, collectibleID, ownerID, transactionID uuid.UUID, claimedAt time.Time) (int64, error)
	InsertOwnership(ctx context.Context, ownership *models.CollectibleOwnership) error
	ClearTransferTransaction(ctx context.Context, collectibleID uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindPack(ctx context.Context, id uuid.UUID) (*models.Pack, error) {
	var pack models.Pack
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&pack).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

// ListPackCollectibles returns the pack's collectibles in a stable order so
// that generated transactions line up with the rows they belong to.
func (r *repositoryImpl) ListPackCollectibles(ctx context.Context, packID uuid.UUID) ([]models.Collectible, error) {
	var rows []models.Collectible
	err := r.db.WithContext(ctx).
		Where("pack_id = ?", packID).
		Order("edition ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) CountPackCollectibles(ctx context.Context, packID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("pack_id = ?", packID).
		Count(&count).Error
	return int(count), err
}

func (r *repositoryImpl) transferQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("collectibles AS c").
		Select("c.*, t.status AS transfer_status").
		Joins("LEFT JOIN algorand_transactions AS t ON t.id = c.latest_transfer_transaction_id")
}

func (r *repositoryImpl) ListPackTransfers(ctx context.Context, packID uuid.UUID) ([]CollectibleTransfer, error) {
	var rows []CollectibleTransfer
	err := r.transferQuery(ctx).
		Where("c.pack_id = ?", packID).
		Order("c.edition ASC").
		Order("c.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repositoryImpl) FindCollectibleTransfer(ctx context.Context, id uuid.UUID) (*CollectibleTransfer, error) {
	var rows []CollectibleTransfer
	err := r.transferQuery(ctx).
		Where("c.id = ?", id).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repositoryImpl) FindUserAccount(ctx context.Context, id uuid.UUID) (*models.UserAccount, error) {
	var user models.UserAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindAlgorandAccount(ctx context.Context, id uuid.UUID) (*models.AlgorandAccount, error) {
	var account models.AlgorandAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// LinkCreationTransaction only writes when no creation transaction is set.
func (r *repositoryImpl) LinkCreationTransaction(ctx context.Context, collectibleID, transactionID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("id = ? AND creation_transaction_id IS NULL", collectibleID).
		Update("creation_transaction_id", transactionID)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) ClearCreationTransactions(ctx context.Context, packID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("pack_id = ?", packID).
		Update("creation_transaction_id", nil).Error
}

// SetAssetAddress records the asset index on the collectible created by the
// transaction with the given network id. Existing addresses are kept.
func (r *repositoryImpl) SetAssetAddress(ctx context.Context, transactionAddress string, assetIndex int64) (int64, error) {
	created := r.db.
		Model(&models.AlgorandTransaction{}).
		Select("id").
		Where("address = ?", transactionAddress)
	res := r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("address IS NULL AND creation_transaction_id IN (?)", created).
		Update("address", assetIndex)
	return res.RowsAffected, res.Error
}

// LinkTransfer assigns the collectible to ownerID together with its transfer
// transaction, only when no transfer is recorded yet.
func (r *repositoryImpl) LinkTransfer(ctx context.Context, collectibleID, ownerID, transactionID uuid.UUID, claimedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("id = ? AND latest_transfer_transaction_id IS NULL", collectibleID).
		Updates(map[string]any{
			"owner_id":                       ownerID,
			"latest_transfer_transaction_id": transactionID,
			"claimed_at":                     claimedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) InsertOwnership(ctx context.Context, ownership *models.CollectibleOwnership) error {
	if ownership.ID == uuid.Nil {
		ownership.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ownership).Error
}

func (r *repositoryImpl) ClearTransferTransaction(ctx context.Context, collectibleID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Collectible{}).
		Where("id = ?", collectibleID).
		Update("latest_transfer_transaction_id", nil).Error
}
