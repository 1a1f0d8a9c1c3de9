package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packclaim/internal/transactions"
	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/algorand/algorandtest"
	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/db/dbtest"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

type fixture struct {
	svc     *Service
	chain   *algorandtest.Chain
	db      *db.Client
	user    models.UserAccount
	account models.AlgorandAccount
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	chain := algorandtest.NewChain()
	ledger, err := transactions.NewService(transactions.ServiceParams{
		DB:     client,
		Repo:   transactions.NewRepository(client.DB()),
		Chain:  chain,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:     client,
		Repo:   NewRepository(client.DB()),
		Ledger: ledger,
		Chain:  chain,
		Config: config.AccountsConfig{InitialBalanceAlgo: "0.1", AssetReserveAlgo: "0.1"},
		Logger: logger.Nop(),
	})
	require.NoError(t, err)

	account := models.AlgorandAccount{ID: uuid.New(), Address: "USERADDRESS", EncryptedKey: "$argon2id-aesgcm$sealed"}
	require.NoError(t, client.DB().Create(&account).Error)
	user := models.UserAccount{ID: uuid.New(), Username: "collector", Email: "c@example.com", Language: "en-US", AlgorandAccountID: account.ID}
	require.NoError(t, client.DB().Create(&user).Error)

	return fixture{svc: svc, chain: chain, db: client, user: user, account: account}
}

func (f fixture) reloadAccount(t *testing.T) models.AlgorandAccount {
	t.Helper()
	var row models.AlgorandAccount
	require.NoError(t, f.db.DB().First(&row, "id = ?", f.account.ID).Error)
	return row
}

func TestRequiredBalance(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint64(100_000), f.svc.RequiredBalance(0))
	assert.Equal(t, uint64(400_000), f.svc.RequiredBalance(3))
}

func TestNewServiceRejectsBadAmounts(t *testing.T) {
	f := newFixture(t)
	_, err := NewService(ServiceParams{
		DB:     f.db,
		Repo:   NewRepository(f.db.DB()),
		Ledger: f.svc.ledger,
		Chain:  f.chain,
		Config: config.AccountsConfig{InitialBalanceAlgo: "lots", AssetReserveAlgo: "0.1"},
		Logger: logger.Nop(),
	})
	require.Error(t, err)
}

func TestEnsureAccountMinBalanceFundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 2))
	assert.Equal(t, 1, f.chain.FundCalls())
	assert.Equal(t, 1, f.chain.SubmitCalls())

	account := f.reloadAccount(t)
	require.NotNil(t, account.CreationTransactionID)

	info, err := f.chain.GetAccountInfo(ctx, f.account.Address)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(301_000), info.Amount)

	var funding models.AlgorandTransaction
	require.NoError(t, f.db.DB().First(&funding, "id = ?", *account.CreationTransactionID).Error)
	assert.Equal(t, enums.AlgorandTransactionStatusConfirmed, funding.Status)

	require.NoError(t, f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 16))
	assert.Equal(t, 1, f.chain.FundCalls())
	assert.Equal(t, 1, f.chain.SubmitCalls())
}

func TestEnsureAccountMinBalanceSkipsFundedAccount(t *testing.T) {
	f := newFixture(t)
	f.chain.SetAccount(f.account.Address, 5_000_000)

	require.NoError(t, f.svc.EnsureAccountMinBalance(context.Background(), f.user.ID, 4))
	assert.Zero(t, f.chain.FundCalls())
	assert.Nil(t, f.reloadAccount(t).CreationTransactionID)
}

func TestEnsureAccountMinBalanceUnknownUserIsFatal(t *testing.T) {
	f := newFixture(t)
	err := f.svc.EnsureAccountMinBalance(context.Background(), uuid.New(), 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestEnsureAccountMinBalanceDeadFundingIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.chain.SubmitHook = func([]string) error {
		return algorand.NewSubmitError("txn dead: round 1 outside of 2--1002")
	}

	err := f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 1)
	require.Error(t, err)
	assert.True(t, algorand.IsTransactionDead(err))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Nil(t, f.reloadAccount(t).CreationTransactionID)

	var groups int64
	require.NoError(t, f.db.DB().Model(&models.AlgorandTransactionGroup{}).Count(&groups).Error)
	assert.Zero(t, groups)

	f.chain.SubmitHook = nil
	require.NoError(t, f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 1))
	assert.Equal(t, 2, f.chain.FundCalls())
	assert.NotNil(t, f.reloadAccount(t).CreationTransactionID)
}

func TestEnsureAccountMinBalanceResumesRecordedFunding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.chain.WithholdConfirmation = true

	err := f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 1)
	require.ErrorIs(t, err, transactions.ErrNotConfirmed)

	f.chain.WithholdConfirmation = false
	account := f.reloadAccount(t)
	require.NotNil(t, account.CreationTransactionID)
	var funding models.AlgorandTransaction
	require.NoError(t, f.db.DB().First(&funding, "id = ?", *account.CreationTransactionID).Error)
	f.chain.Confirm(funding.Address)

	require.NoError(t, f.svc.EnsureAccountMinBalance(ctx, f.user.ID, 1))
	assert.Equal(t, 1, f.chain.FundCalls())
}

func TestRecordFundingLosesRaceWhenAlreadyLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.account
	require.NoError(t, f.db.DB().Model(&models.AlgorandAccount{}).
		Where("id = ?", f.account.ID).
		Update("creation_transaction_id", uuid.New()).Error)

	_, err := f.svc.recordFunding(ctx, &stale, 100_000)
	require.ErrorIs(t, err, errLinkRaceLost)

	var groups int64
	require.NoError(t, f.db.DB().Model(&models.AlgorandTransactionGroup{}).Count(&groups).Error)
	assert.Zero(t, groups)
}
