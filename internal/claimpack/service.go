package claimpack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/internal/notifications"
	"github.com/angelmondragon/packclaim/internal/transactions"
	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/outbox/payloads"
	"github.com/angelmondragon/packclaim/pkg/security"
)

const (
	maxPackCollectibles = 16
	transferConcurrency = 4
	notifyConsumer      = "notify-pack-owner"
)

// errLinkRaceLost rolls back a write whose guarded link matched no row.
var errLinkRaceLost = errors.New("claimpack: link race lost")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	SaveSignedTransactions(ctx context.Context, tx *gorm.DB, signed [][]byte, ids []string) (transactions.Batch, error)
	LoadBatch(ctx context.Context, transactionID uuid.UUID) (transactions.Batch, error)
	SettleBatch(ctx context.Context, batch transactions.Batch, clear func(tx *gorm.DB) error) error
}

type accountFunder interface {
	EnsureAccountMinBalance(ctx context.Context, userAccountID uuid.UUID, assetCount int) error
}

type catalogReader interface {
	CollectibleTemplates(ctx context.Context, ids []uuid.UUID) ([]models.CollectibleTemplate, error)
	PackTitle(ctx context.Context, templateID uuid.UUID, language string) (string, error)
}

type notifier interface {
	CreateNotificationTx(ctx context.Context, tx *gorm.DB, req notifications.Request) (*models.Notification, error)
}

type eventStore interface {
	Exists(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error)
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// idempotencyGuard caches, after commit, that a pack owner was notified. The
// outbox row stays the source of truth.
type idempotencyGuard interface {
	IsProcessed(ctx context.Context, consumer string, id uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, id uuid.UUID) error
}

type ServiceParams struct {
	DB             txRunner
	Repo           Repository
	Ledger         ledger
	Chain          algorand.Adapter
	Accounts       accountFunder
	Catalog        catalogReader
	Notifications  notifier
	Outbox         eventStore
	Idempotency    idempotencyGuard
	MnemonicSecret string
	Logger         *logger.Logger
	Clock          func() time.Time
}

// Service runs the four claim-pack steps. Every step is safe to repeat from
// any failure point.
type Service struct {
	db             txRunner
	repo           Repository
	ledger         ledger
	chain          algorand.Adapter
	accounts       accountFunder
	catalog        catalogReader
	notifications  notifier
	outbox         eventStore
	idempotency    idempotencyGuard
	mnemonicSecret string
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("claimpack repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("transaction ledger required")
	}
	if params.Chain == nil {
		return nil, fmt.Errorf("algorand adapter required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("accounts service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.MnemonicSecret == "" {
		return nil, fmt.Errorf("mnemonic secret required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:             params.DB,
		repo:           params.Repo,
		ledger:         params.Ledger,
		chain:          params.Chain,
		accounts:       params.Accounts,
		catalog:        params.Catalog,
		notifications:  params.Notifications,
		outbox:         params.Outbox,
		idempotency:    params.Idempotency,
		mnemonicSecret: params.MnemonicSecret,
		logg:           params.Logger,
		now:            clock,
	}, nil
}

func (s *Service) loadClaimedPack(ctx context.Context, packID uuid.UUID) (*models.Pack, error) {
	pack, err := s.repo.FindPack(ctx, packID)
	if err != nil {
		return nil, fmt.Errorf("load pack %s: %w", packID, err)
	}
	if pack == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "pack %s not found", packID)
	}
	if pack.OwnerID == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "pack %s has no owner", packID)
	}
	return pack, nil
}

// EnsureAccountMinBalanceForPack funds the pack owner's custodial account so
// it can hold every collectible in the pack.
func (s *Service) EnsureAccountMinBalanceForPack(ctx context.Context, data ClaimPackData) error {
	pack, err := s.loadClaimedPack(ctx, data.PackID)
	if err != nil {
		return err
	}
	count, err := s.repo.CountPackCollectibles(ctx, pack.ID)
	if err != nil {
		return fmt.Errorf("count pack collectibles: %w", err)
	}
	return s.accounts.EnsureAccountMinBalance(s.logg.WithUserID(ctx, pack.OwnerID.String()), *pack.OwnerID, count)
}

// MintPackCollectibles creates one asset per collectible. Once creation
// transactions are recorded they are only ever resubmitted, never replaced,
// unless the network reports them dead.
func (s *Service) MintPackCollectibles(ctx context.Context, data ClaimPackData) error {
	collectibles, err := s.repo.ListPackCollectibles(ctx, data.PackID)
	if err != nil {
		return fmt.Errorf("list pack collectibles: %w", err)
	}
	if len(collectibles) == 0 {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "pack %s does not have any collectibles", data.PackID)
	}
	if len(collectibles) > maxPackCollectibles {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "cannot mint %d collectibles for pack %s, the limit is %d", len(collectibles), data.PackID, maxPackCollectibles)
	}
	if allMinted(collectibles) {
		return nil
	}

	templateIDs := make([]uuid.UUID, 0, len(collectibles))
	seenTemplates := make(map[uuid.UUID]struct{}, len(collectibles))
	for _, collectible := range collectibles {
		if _, ok := seenTemplates[collectible.TemplateID]; ok {
			continue
		}
		seenTemplates[collectible.TemplateID] = struct{}{}
		templateIDs = append(templateIDs, collectible.TemplateID)
	}
	templates, err := s.catalog.CollectibleTemplates(ctx, templateIDs)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "no collectible templates found for pack %s", data.PackID)
	}

	if collectibles[0].CreationTransactionID == nil {
		if err := s.recordMint(ctx, collectibles, templates); err != nil {
			if !errors.Is(err, errLinkRaceLost) {
				return err
			}
			s.logg.Info(ctx, "creation transactions recorded by another worker")
		}
		collectibles, err = s.repo.ListPackCollectibles(ctx, data.PackID)
		if err != nil {
			return fmt.Errorf("reload pack collectibles: %w", err)
		}
	}
	if collectibles[0].CreationTransactionID == nil {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "pack %s has no creation transactions", data.PackID)
	}

	batch, err := s.ledger.LoadBatch(ctx, *collectibles[0].CreationTransactionID)
	if err != nil {
		return err
	}
	packID := data.PackID
	err = s.ledger.SettleBatch(ctx, batch, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ClearCreationTransactions(ctx, packID)
	})
	if err != nil {
		return fmt.Errorf("mint pack %s: %w", packID, err)
	}
	return s.patchAssetAddresses(ctx, batch.TransactionIDs())
}

func allMinted(collectibles []models.Collectible) bool {
	for _, collectible := range collectibles {
		if collectible.Address == nil {
			return false
		}
	}
	return true
}

// recordMint signs creation transactions outside of any DB transaction, then
// stores them and links every collectible atomically.
func (s *Service) recordMint(ctx context.Context, collectibles []models.Collectible, templates []models.CollectibleTemplate) error {
	generated, err := s.chain.GenerateCreateAssetTransactions(ctx, collectibles, templates)
	if err != nil {
		return fmt.Errorf("generate create asset transactions: %w", err)
	}
	if generated.Len() != len(collectibles) {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "signer returned %d transactions for %d collectibles", generated.Len(), len(collectibles))
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := s.ledger.SaveSignedTransactions(ctx, tx, generated.SignedTransactions, generated.TransactionIDs)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		for i, collectible := range collectibles {
			affected, err := repo.LinkCreationTransaction(ctx, collectible.ID, batch.Transactions[i].ID)
			if err != nil {
				return fmt.Errorf("link creation transaction: %w", err)
			}
			if affected == 0 {
				return errLinkRaceLost
			}
		}
		return nil
	})
}

func (s *Service) patchAssetAddresses(ctx context.Context, transactionIDs []string) error {
	infos, err := s.chain.WaitForAllConfirmations(ctx, transactionIDs)
	if err != nil {
		return fmt.Errorf("read asset indexes: %w", err)
	}
	for _, info := range infos {
		if info.TxID == "" || info.AssetIndex == 0 {
			return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "expected an asset index for transaction %q", info.TxID)
		}
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, info := range infos {
			if _, err := repo.SetAssetAddress(ctx, info.TxID, int64(info.AssetIndex)); err != nil {
				return fmt.Errorf("set asset address for %s: %w", info.TxID, err)
			}
		}
		return nil
	})
}

// recipient is the validated destination of a pack transfer.
type recipient struct {
	userID  uuid.UUID
	account *models.AlgorandAccount
}

// TransferPack claws every collectible back from its creator into the
// owner's account. Collectibles are transferred independently and their
// errors are combined.
func (s *Service) TransferPack(ctx context.Context, data ClaimPackData) error {
	pack, err := s.loadClaimedPack(ctx, data.PackID)
	if err != nil {
		return err
	}
	ownerID := *pack.OwnerID
	ctx = s.logg.WithUserID(ctx, ownerID.String())

	collectibles, err := s.repo.ListPackTransfers(ctx, pack.ID)
	if err != nil {
		return fmt.Errorf("list pack transfers: %w", err)
	}
	pending := make([]uuid.UUID, 0, len(collectibles))
	for _, collectible := range collectibles {
		if !collectible.Transferred(ownerID) {
			pending = append(pending, collectible.ID)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	to, err := s.loadRecipient(ctx, ownerID)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs error
	)
	var group errgroup.Group
	group.SetLimit(transferConcurrency)
	for _, collectibleID := range pending {
		group.Go(func() error {
			if err := s.transferCollectible(ctx, collectibleID, to); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("collectible %s: %w", collectibleID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if errs == nil {
		return nil
	}
	for _, err := range multierr.Errors(errs) {
		if !pkgerrors.IsRetryable(err) {
			return pkgerrors.Wrap(pkgerrors.CodeUnrecoverable, errs, "transfer pack")
		}
	}
	return errs
}

// loadRecipient checks the owner's custodial account before anything is
// signed: the key must decrypt and the account must exist on chain.
func (s *Service) loadRecipient(ctx context.Context, userID uuid.UUID) (recipient, error) {
	user, err := s.repo.FindUserAccount(ctx, userID)
	if err != nil {
		return recipient{}, fmt.Errorf("load user account %s: %w", userID, err)
	}
	if user == nil {
		return recipient{}, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "user account %s not found", userID)
	}
	account, err := s.repo.FindAlgorandAccount(ctx, user.AlgorandAccountID)
	if err != nil {
		return recipient{}, fmt.Errorf("load algorand account: %w", err)
	}
	if account == nil || account.EncryptedKey == "" {
		return recipient{}, pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "user %s is missing an algorand account", userID)
	}
	if _, err := security.DecryptMnemonic(account.EncryptedKey, s.mnemonicSecret); err != nil {
		return recipient{}, pkgerrors.Wrap(pkgerrors.CodeUnrecoverable, err, "custodial key does not decrypt")
	}
	info, err := s.chain.GetAccountInfo(ctx, account.Address)
	if err != nil {
		return recipient{}, fmt.Errorf("get account info: %w", err)
	}
	if info == nil {
		return recipient{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "algorand account %s not found on chain", account.Address)
	}
	return recipient{userID: userID, account: account}, nil
}

func (s *Service) transferCollectible(ctx context.Context, collectibleID uuid.UUID, to recipient) error {
	collectible, err := s.repo.FindCollectibleTransfer(ctx, collectibleID)
	if err != nil {
		return fmt.Errorf("load collectible: %w", err)
	}
	if collectible == nil {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "collectible %s not found", collectibleID)
	}
	if collectible.Address == nil {
		return pkgerrors.New(pkgerrors.CodeUnrecoverable, "collectible not yet minted")
	}
	assetIndex := uint64(*collectible.Address)

	asset, err := s.chain.GetAssetInfo(ctx, assetIndex)
	if err != nil {
		return fmt.Errorf("get asset info: %w", err)
	}
	if asset == nil || asset.Creator == "" {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "asset %d not found on chain", assetIndex)
	}
	if collectible.OwnerID != nil && *collectible.OwnerID != to.userID {
		return pkgerrors.New(pkgerrors.CodeUnrecoverable, "collectible is owned by another user")
	}
	if collectible.Transferred(to.userID) {
		return nil
	}

	if collectible.LatestTransferTransactionID == nil {
		if err := s.recordTransfer(ctx, collectibleID, assetIndex, asset.Creator, to); err != nil {
			if !errors.Is(err, errLinkRaceLost) {
				return err
			}
			s.logg.Info(ctx, "transfer recorded by another worker")
		}
		collectible, err = s.repo.FindCollectibleTransfer(ctx, collectibleID)
		if err != nil {
			return fmt.Errorf("reload collectible: %w", err)
		}
		if collectible == nil || collectible.LatestTransferTransactionID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "collectible has no transfer transaction")
		}
	}

	batch, err := s.ledger.LoadBatch(ctx, *collectible.LatestTransferTransactionID)
	if err != nil {
		return err
	}
	return s.ledger.SettleBatch(ctx, batch, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ClearTransferTransaction(ctx, collectibleID)
	})
}

func (s *Service) recordTransfer(ctx context.Context, collectibleID uuid.UUID, assetIndex uint64, creator string, to recipient) error {
	generated, err := s.chain.GenerateClawbackTransactions(ctx, algorand.ClawbackRequest{
		AssetIndex:         assetIndex,
		EncryptedMnemonic:  to.account.EncryptedKey,
		FromAccountAddress: creator,
	})
	if err != nil {
		return fmt.Errorf("generate clawback transactions: %w", err)
	}
	if generated.Len() <= 0 {
		return pkgerrors.New(pkgerrors.CodeUnrecoverable, "signer returned no clawback transactions")
	}

	now := s.now()
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := s.ledger.SaveSignedTransactions(ctx, tx, generated.SignedTransactions, generated.TransactionIDs)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		affected, err := repo.LinkTransfer(ctx, collectibleID, to.userID, batch.Transactions[0].ID, now)
		if err != nil {
			return fmt.Errorf("link transfer transaction: %w", err)
		}
		if affected == 0 {
			return errLinkRaceLost
		}
		return repo.InsertOwnership(ctx, &models.CollectibleOwnership{
			CollectibleID: collectibleID,
			OwnerID:       to.userID,
			CreatedAt:     now,
		})
	})
}

// notifiedPerGuard trusts a guard hit only once the pack_claimed row is seen
// committed. A mark without the row is stale and the step runs again.
func (s *Service) notifiedPerGuard(ctx context.Context, packID uuid.UUID) (bool, error) {
	marked, err := s.idempotency.IsProcessed(ctx, notifyConsumer, packID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "notification guard unreadable, checking outbox")
		return false, nil
	}
	if !marked {
		return false, nil
	}
	var exists bool
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		exists, err = s.outbox.Exists(tx, enums.EventPackClaimed, enums.AggregatePack, packID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check pack claimed event: %w", err)
	}
	if !exists {
		s.logg.Warn(ctx, "notification guard set without pack_claimed event, notifying again")
	}
	return exists, nil
}

// NotifyPackOwner sends the transfer_success notification and emits
// pack_claimed, at most once per pack.
func (s *Service) NotifyPackOwner(ctx context.Context, data ClaimPackData) error {
	pack, err := s.loadClaimedPack(ctx, data.PackID)
	if err != nil {
		return err
	}
	if s.idempotency != nil {
		done, err := s.notifiedPerGuard(ctx, pack.ID)
		if err != nil {
			return err
		}
		if done {
			s.logg.Info(ctx, "pack owner already notified")
			return nil
		}
	}
	ownerID := *pack.OwnerID
	user, err := s.repo.FindUserAccount(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load user account %s: %w", ownerID, err)
	}
	if user == nil {
		return pkgerrors.Newf(pkgerrors.CodeUnrecoverable, "user account %s not found", ownerID)
	}
	title, err := s.catalog.PackTitle(ctx, pack.TemplateID, user.Language)
	if err != nil {
		return err
	}
	collectibles, err := s.repo.ListPackCollectibles(ctx, pack.ID)
	if err != nil {
		return fmt.Errorf("list pack collectibles: %w", err)
	}

	sent := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		exists, err := s.outbox.Exists(tx, enums.EventPackClaimed, enums.AggregatePack, pack.ID)
		if err != nil {
			return fmt.Errorf("check pack claimed event: %w", err)
		}
		if exists {
			return nil
		}
		if _, err := s.notifications.CreateNotificationTx(ctx, tx, notifications.Request{
			Type:          enums.NotificationTypeTransferSuccess,
			UserAccountID: ownerID,
			Variables:     map[string]string{"packTitle": title},
		}); err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(collectibles))
		for _, collectible := range collectibles {
			ids = append(ids, collectible.ID)
		}
		now := s.now()
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPackClaimed,
			AggregateType: enums.AggregatePack,
			AggregateID:   pack.ID,
			Actor:         &outbox.ActorRef{UserID: ownerID, AlgorandAccountID: &user.AlgorandAccountID},
			Data: payloads.PackClaimedEvent{
				PackID:         pack.ID,
				OwnerID:        ownerID,
				CollectibleIDs: ids,
				ClaimedAt:      now,
			},
			OccurredAt: now,
		}); err != nil {
			return fmt.Errorf("emit pack claimed event: %w", err)
		}
		sent = true
		return nil
	})
	if err != nil {
		return err
	}
	if sent {
		s.logg.Info(ctx, "pack owner notified")
	}
	// Only a committed pack_claimed row may be cached as done.
	if s.idempotency != nil {
		if err := s.idempotency.MarkProcessed(ctx, notifyConsumer, pack.ID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to mark notification guard")
		}
	}
	return nil
}
