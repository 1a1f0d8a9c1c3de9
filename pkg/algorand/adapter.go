// Package algorand holds the blockchain adapter contract used by the claim
// pipeline and its HTTP implementation against an algod node plus the
// custodial signing service.
package algorand

import (
	"context"

	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// Adapter is everything the settlement pipeline needs from the chain.
type Adapter interface {
	SubmitTransaction(ctx context.Context, signedTransactions [][]byte) error
	WaitForAllConfirmations(ctx context.Context, transactionIDs []string) ([]PendingTransactionInfo, error)
	GenerateCreateAssetTransactions(ctx context.Context, collectibles []models.Collectible, templates []models.CollectibleTemplate) (GeneratedTransactions, error)
	GenerateClawbackTransactions(ctx context.Context, req ClawbackRequest) (GeneratedTransactions, error)
	GetAssetInfo(ctx context.Context, assetIndex uint64) (*AssetInfo, error)
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)
	InitialFundTransactions(ctx context.Context, req FundRequest) (GeneratedTransactions, error)
}

// GeneratedTransactions pairs signed payloads with their transaction ids,
// index for index.
type GeneratedTransactions struct {
	SignedTransactions [][]byte
	TransactionIDs     []string
}

// Len returns the number of transactions, or -1 when the two slices disagree.
func (g GeneratedTransactions) Len() int {
	if len(g.SignedTransactions) != len(g.TransactionIDs) {
		return -1
	}
	return len(g.TransactionIDs)
}

// PendingTransactionInfo is the node's view of a submitted transaction.
// ConfirmedRound is zero until the transaction lands.
type PendingTransactionInfo struct {
	TxID           string
	ConfirmedRound uint64
	PoolError      string
	AssetIndex     uint64
}

func (p PendingTransactionInfo) Confirmed() bool {
	return p.ConfirmedRound > 0
}

type ClawbackRequest struct {
	AssetIndex         uint64
	EncryptedMnemonic  string
	FromAccountAddress string
}

// FundRequest asks for the grouped funding payment plus key registration that
// brings a fresh custodial account above its minimum balance.
type FundRequest struct {
	EncryptedMnemonic string
	Address           string
	InitialBalance    uint64
}

type AssetInfo struct {
	Index   uint64
	Creator string
}

type AccountInfo struct {
	Address            string
	Amount             uint64
	MinBalance         uint64
	TotalAssetsOptedIn int
}
