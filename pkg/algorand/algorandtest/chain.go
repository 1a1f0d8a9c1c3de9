// Package algorandtest provides an in-memory chain that satisfies
// algorand.Adapter for tests.
package algorandtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/db/models"
)

const (
	CreatorAddress = "CREATORADDRESS"
	signedPrefix   = "signed:"
)

type txKind int

const (
	kindCreateAsset txKind = iota
	kindClawback
	kindFund
)

type transaction struct {
	kind           txKind
	confirmedRound uint64
	assetIndex     uint64
	fundAddress    string
	fundAmount     uint64
}

// Chain is a deterministic fake ledger. Hooks run without the lock held so
// they may call back into the chain.
type Chain struct {
	mu sync.Mutex

	round     uint64
	nextTx    int
	nextAsset uint64
	txs       map[string]*transaction
	assets    map[uint64]string
	accounts  map[string]*algorand.AccountInfo
	poolError map[string]string

	submitCalls   int
	generateCalls int
	clawbackCalls int
	fundCalls     int

	// SubmitHook runs before a group is accepted. A non-nil error rejects
	// the group without recording it.
	SubmitHook func(txIDs []string) error
	// GenerateHook runs before create-asset transactions are generated.
	GenerateHook func()
	// WithholdConfirmation keeps accepted transactions pending.
	WithholdConfirmation bool
}

var _ algorand.Adapter = (*Chain)(nil)

func NewChain() *Chain {
	return &Chain{
		round:     1000,
		nextAsset: 5000,
		txs:       map[string]*transaction{},
		assets:    map[uint64]string{},
		accounts:  map[string]*algorand.AccountInfo{},
		poolError: map[string]string{},
	}
}

// SubmitTransaction records the group as confirmed in the next round.
func (c *Chain) SubmitTransaction(_ context.Context, signedTransactions [][]byte) error {
	ids := make([]string, 0, len(signedTransactions))
	for _, raw := range signedTransactions {
		id, ok := strings.CutPrefix(string(raw), signedPrefix)
		if !ok {
			return algorand.NewSubmitError("malformed signed transaction")
		}
		ids = append(ids, id)
	}

	c.mu.Lock()
	c.submitCalls++
	hook := c.SubmitHook
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ids); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, known := c.txs[id]; !known {
			return algorand.NewSubmitError(fmt.Sprintf("unknown transaction %s", id))
		}
	}
	if c.WithholdConfirmation {
		return nil
	}
	c.round++
	for _, id := range ids {
		c.confirmLocked(id)
	}
	return nil
}

// Confirm lands a transaction out of band, e.g. a submission whose response
// was lost.
func (c *Chain) Confirm(txIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round++
	for _, id := range txIDs {
		c.confirmLocked(id)
	}
}

func (c *Chain) confirmLocked(id string) {
	tx := c.txs[id]
	if tx == nil || tx.confirmedRound > 0 {
		return
	}
	tx.confirmedRound = c.round
	switch tx.kind {
	case kindCreateAsset:
		c.nextAsset++
		tx.assetIndex = c.nextAsset
		c.assets[tx.assetIndex] = CreatorAddress
	case kindFund:
		account := c.accounts[tx.fundAddress]
		if account == nil {
			account = &algorand.AccountInfo{Address: tx.fundAddress}
			c.accounts[tx.fundAddress] = account
		}
		account.Amount += tx.fundAmount
	}
}

// SetPoolError makes the node report txID as rejected from the pool.
func (c *Chain) SetPoolError(txID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poolError[txID] = message
}

func (c *Chain) WaitForAllConfirmations(_ context.Context, transactionIDs []string) ([]algorand.PendingTransactionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]algorand.PendingTransactionInfo, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		info := algorand.PendingTransactionInfo{TxID: id, PoolError: c.poolError[id]}
		if tx := c.txs[id]; tx != nil {
			info.ConfirmedRound = tx.confirmedRound
			info.AssetIndex = tx.assetIndex
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Chain) GenerateCreateAssetTransactions(_ context.Context, collectibles []models.Collectible, _ []models.CollectibleTemplate) (algorand.GeneratedTransactions, error) {
	c.mu.Lock()
	c.generateCalls++
	hook := c.GenerateHook
	c.mu.Unlock()

	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := algorand.GeneratedTransactions{}
	for range collectibles {
		c.appendLocked(&out, &transaction{kind: kindCreateAsset})
	}
	return out, nil
}

func (c *Chain) GenerateClawbackTransactions(_ context.Context, req algorand.ClawbackRequest) (algorand.GeneratedTransactions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clawbackCalls++
	if _, ok := c.assets[req.AssetIndex]; !ok {
		return algorand.GeneratedTransactions{}, fmt.Errorf("asset %d does not exist", req.AssetIndex)
	}
	out := algorand.GeneratedTransactions{}
	c.appendLocked(&out, &transaction{kind: kindClawback})
	return out, nil
}

func (c *Chain) InitialFundTransactions(_ context.Context, req algorand.FundRequest) (algorand.GeneratedTransactions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fundCalls++
	out := algorand.GeneratedTransactions{}
	c.appendLocked(&out, &transaction{kind: kindFund, fundAddress: req.Address, fundAmount: req.InitialBalance})
	c.appendLocked(&out, &transaction{kind: kindFund, fundAddress: req.Address})
	return out, nil
}

func (c *Chain) appendLocked(out *algorand.GeneratedTransactions, tx *transaction) {
	c.nextTx++
	id := fmt.Sprintf("TX%04d", c.nextTx)
	c.txs[id] = tx
	out.TransactionIDs = append(out.TransactionIDs, id)
	out.SignedTransactions = append(out.SignedTransactions, []byte(signedPrefix+id))
}

func (c *Chain) GetAssetInfo(_ context.Context, assetIndex uint64) (*algorand.AssetInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	creator, ok := c.assets[assetIndex]
	if !ok {
		return nil, nil
	}
	return &algorand.AssetInfo{Index: assetIndex, Creator: creator}, nil
}

// SetAssetCreator overrides the creator reported for an asset; an empty
// creator removes the asset.
func (c *Chain) SetAssetCreator(assetIndex uint64, creator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if creator == "" {
		delete(c.assets, assetIndex)
		return
	}
	c.assets[assetIndex] = creator
}

func (c *Chain) GetAccountInfo(_ context.Context, address string) (*algorand.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.accounts[address]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

// SetAccount registers an on-chain balance for address.
func (c *Chain) SetAccount(address string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[address] = &algorand.AccountInfo{Address: address, Amount: amount}
}

func (c *Chain) SubmitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls
}

func (c *Chain) GenerateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generateCalls
}

func (c *Chain) ClawbackCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clawbackCalls
}

func (c *Chain) FundCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fundCalls
}

// IsConfirmed reports whether txID has landed.
func (c *Chain) IsConfirmed(txID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := c.txs[txID]
	return tx != nil && tx.confirmedRound > 0
}
