// Package accounts funds custodial blockchain accounts so they can hold the
// assets of a pack.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/internal/transactions"
	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

var (
	microAlgosPerAlgo = decimal.NewFromInt(1_000_000)
	// fundingFeeBuffer covers the fee of the keyreg sent by the new account.
	fundingFeeBuffer = decimal.RequireFromString("0.001")
)

var errLinkRaceLost = errors.New("account funding already linked by another worker")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	SaveSignedTransactions(ctx context.Context, tx *gorm.DB, signed [][]byte, ids []string) (transactions.Batch, error)
	LoadBatch(ctx context.Context, transactionID uuid.UUID) (transactions.Batch, error)
	SettleBatch(ctx context.Context, batch transactions.Batch, clear func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Ledger ledger
	Chain  algorand.Adapter
	Config config.AccountsConfig
	Logger *logger.Logger
}

type Service struct {
	db             txRunner
	repo           Repository
	ledger         ledger
	chain          algorand.Adapter
	logg           *logger.Logger
	initialBalance decimal.Decimal
	assetReserve   decimal.Decimal
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("transactions ledger required")
	}
	if params.Chain == nil {
		return nil, fmt.Errorf("algorand adapter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	initial, err := parseAlgo("initial balance", params.Config.InitialBalanceAlgo)
	if err != nil {
		return nil, err
	}
	reserve, err := parseAlgo("asset reserve", params.Config.AssetReserveAlgo)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:             params.DB,
		repo:           params.Repo,
		ledger:         params.Ledger,
		chain:          params.Chain,
		logg:           params.Logger,
		initialBalance: initial,
		assetReserve:   reserve,
	}, nil
}

func parseAlgo(name, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", name)
	}
	return amount, nil
}

// RequiredBalance returns the minimum balance, in microAlgos, an account needs
// to hold assetCount assets.
func (s *Service) RequiredBalance(assetCount int) uint64 {
	algo := s.initialBalance.Add(s.assetReserve.Mul(decimal.NewFromInt(int64(assetCount))))
	return toMicroAlgos(algo)
}

func toMicroAlgos(algo decimal.Decimal) uint64 {
	return uint64(algo.Mul(microAlgosPerAlgo).Ceil().IntPart())
}

// EnsureAccountMinBalance funds the user's custodial account once so it can
// opt in to assetCount assets. Accounts are never topped up after their
// funding transaction is confirmed.
func (s *Service) EnsureAccountMinBalance(ctx context.Context, userAccountID uuid.UUID, assetCount int) error {
	user, err := s.repo.FindUserAccount(ctx, userAccountID)
	if err != nil {
		return fmt.Errorf("load user account %s: %w", userAccountID, err)
	}
	if user == nil {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "user account %s not found", userAccountID)
	}
	account, err := s.repo.FindAlgorandAccount(ctx, user.AlgorandAccountID)
	if err != nil {
		return fmt.Errorf("load algorand account %s: %w", user.AlgorandAccountID, err)
	}
	if account == nil {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "algorand account %s not found", user.AlgorandAccountID)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"algorand_account_id": account.ID.String(),
		"address":             account.Address,
	})

	var batch transactions.Batch
	if account.CreationTransactionID == nil {
		required := s.RequiredBalance(assetCount)
		info, err := s.chain.GetAccountInfo(ctx, account.Address)
		if err != nil {
			return fmt.Errorf("get account info: %w", err)
		}
		if info != nil && info.Amount >= required {
			s.logg.Debug(ctx, "account already holds the minimum balance")
			return nil
		}

		batch, err = s.recordFunding(ctx, account, required)
		if errors.Is(err, errLinkRaceLost) {
			s.logg.Info(ctx, "account funding recorded by another worker")
			account, err = s.repo.FindAlgorandAccount(ctx, account.ID)
			if err == nil && (account == nil || account.CreationTransactionID == nil) {
				err = pkgerrors.New(pkgerrors.CodeStateConflict, "account funding link disappeared")
			}
		}
		if err != nil {
			return err
		}
	}
	if account.CreationTransactionID != nil && len(batch.Transactions) == 0 {
		batch, err = s.ledger.LoadBatch(ctx, *account.CreationTransactionID)
		if err != nil {
			return err
		}
	}

	accountID := account.ID
	err = s.ledger.SettleBatch(ctx, batch, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ClearCreationTransaction(ctx, accountID)
	})
	if err != nil {
		return fmt.Errorf("fund account %s: %w", account.Address, err)
	}
	return nil
}

func (s *Service) recordFunding(ctx context.Context, account *models.AlgorandAccount, required uint64) (transactions.Batch, error) {
	generated, err := s.chain.InitialFundTransactions(ctx, algorand.FundRequest{
		EncryptedMnemonic: account.EncryptedKey,
		Address:           account.Address,
		InitialBalance:    required + toMicroAlgos(fundingFeeBuffer),
	})
	if err != nil {
		return transactions.Batch{}, fmt.Errorf("generate funding transactions: %w", err)
	}
	if generated.Len() <= 0 {
		return transactions.Batch{}, pkgerrors.New(pkgerrors.CodeUnrecoverable, "signer returned no funding transactions")
	}

	var batch transactions.Batch
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		batch, err = s.ledger.SaveSignedTransactions(ctx, tx, generated.SignedTransactions, generated.TransactionIDs)
		if err != nil {
			return err
		}
		affected, err := s.repo.WithTx(tx).LinkCreationTransaction(ctx, account.ID, batch.Transactions[0].ID)
		if err != nil {
			return fmt.Errorf("link funding transaction: %w", err)
		}
		if affected == 0 {
			return errLinkRaceLost
		}
		return nil
	})
	if err != nil {
		return transactions.Batch{}, err
	}
	txID := batch.Transactions[0].ID
	account.CreationTransactionID = &txID
	return batch, nil
}
