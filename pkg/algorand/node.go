package algorand

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/cenkalti/backoff/v4"
)

var (
	errNotYetConfirmed = errors.New("transaction not yet confirmed")
	// The SDK reports non-2xx replies as "HTTP <code>...: <body>".
	httpStatusPattern = regexp.MustCompile(`(?s)^HTTP (\d{3})\b[^:]*: ?(.*)$`)
)

// NodeClient is the algod side of the adapter, built on the SDK client.
type NodeClient struct {
	algod            *algod.Client
	requestTimeout   time.Duration
	confirmationWait time.Duration
	pollInterval     time.Duration
}

type NodeClientParams struct {
	BaseURL          string
	Token            string
	RequestTimeout   time.Duration
	ConfirmationWait time.Duration
	PollInterval     time.Duration
}

func NewNodeClient(params NodeClientParams) (*NodeClient, error) {
	if params.BaseURL == "" {
		return nil, errors.New("algod url is required")
	}
	client, err := algod.MakeClient(strings.TrimRight(params.BaseURL, "/"), params.Token)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}
	node := &NodeClient{
		algod:            client,
		requestTimeout:   params.RequestTimeout,
		confirmationWait: params.ConfirmationWait,
		pollInterval:     params.PollInterval,
	}
	if node.requestTimeout <= 0 {
		node.requestTimeout = 15 * time.Second
	}
	if node.confirmationWait <= 0 {
		node.confirmationWait = 30 * time.Second
	}
	if node.pollInterval <= 0 {
		node.pollInterval = 500 * time.Millisecond
	}
	return node, nil
}

func (c *NodeClient) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.requestTimeout)
}

// Submit sends a signed group as one concatenated payload. Node rejections
// come back as *SubmitError so Classify can read them.
func (c *NodeClient) Submit(ctx context.Context, signedTransactions [][]byte) error {
	if len(signedTransactions) == 0 {
		return errors.New("no transactions to submit")
	}
	ctx, cancel := c.call(ctx)
	defer cancel()
	if _, err := c.algod.SendRawTransaction(bytes.Join(signedTransactions, nil)).Do(ctx); err != nil {
		if status, msg, ok := parseNodeError(err); ok {
			return &SubmitError{StatusCode: status, Message: msg}
		}
		return fmt.Errorf("post transactions: %w", err)
	}
	return nil
}

// PendingTransaction returns the node's view of a single transaction.
func (c *NodeClient) PendingTransaction(ctx context.Context, txID string) (PendingTransactionInfo, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	resp, _, err := c.algod.PendingTransactionInformation(txID).Do(ctx)
	if err != nil {
		if isNotFound(err) {
			return PendingTransactionInfo{}, fmt.Errorf("transaction %s unknown to node", txID)
		}
		return PendingTransactionInfo{}, fmt.Errorf("pending transaction %s: %w", txID, err)
	}
	return PendingTransactionInfo{
		TxID:           txID,
		ConfirmedRound: resp.ConfirmedRound,
		PoolError:      resp.PoolError,
		AssetIndex:     resp.AssetIndex,
	}, nil
}

// WaitForAllConfirmations polls every id until it is confirmed, rejected from
// the pool, or the confirmation window elapses. Unconfirmed transactions are
// returned as-is; callers decide what that means.
func (c *NodeClient) WaitForAllConfirmations(ctx context.Context, transactionIDs []string) ([]PendingTransactionInfo, error) {
	infos := make([]PendingTransactionInfo, 0, len(transactionIDs))
	for _, txID := range transactionIDs {
		info, err := c.waitForConfirmation(ctx, txID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *NodeClient) waitForConfirmation(ctx context.Context, txID string) (PendingTransactionInfo, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 4 * c.pollInterval
	policy.MaxElapsedTime = c.confirmationWait

	var last PendingTransactionInfo
	info, err := backoff.RetryWithData(func() (PendingTransactionInfo, error) {
		info, err := c.PendingTransaction(ctx, txID)
		if err != nil {
			return info, err
		}
		last = info
		if info.Confirmed() || info.PoolError != "" {
			return info, nil
		}
		return info, errNotYetConfirmed
	}, backoff.WithContext(policy, ctx))
	switch {
	case err == nil:
		return info, nil
	case errors.Is(err, errNotYetConfirmed) && ctx.Err() == nil:
		return last, nil
	}
	return PendingTransactionInfo{}, fmt.Errorf("wait for transaction %s: %w", txID, err)
}

// AssetInfo returns nil when the asset does not exist.
func (c *NodeClient) AssetInfo(ctx context.Context, assetIndex uint64) (*AssetInfo, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	asset, err := c.algod.GetAssetByID(assetIndex).Do(ctx)
	switch {
	case isNotFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("asset %d: %w", assetIndex, err)
	}
	return &AssetInfo{Index: asset.Index, Creator: asset.Params.Creator}, nil
}

// AccountInfo returns nil when the node does not know the address.
func (c *NodeClient) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	account, err := c.algod.AccountInformation(address).Exclude("all").Do(ctx)
	switch {
	case isNotFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("account %s: %w", address, err)
	}
	return &AccountInfo{
		Address:            account.Address,
		Amount:             account.Amount,
		MinBalance:         account.MinBalance,
		TotalAssetsOptedIn: int(account.TotalAssetsOptedIn),
	}, nil
}

// Ping hits the node health endpoint.
func (c *NodeClient) Ping(ctx context.Context) error {
	ctx, cancel := c.call(ctx)
	defer cancel()
	if err := c.algod.HealthCheck().Do(ctx); err != nil {
		return fmt.Errorf("algod health: %w", err)
	}
	return nil
}

// parseNodeError splits an SDK HTTP error into status and the node's message.
// Transport failures do not match.
func parseNodeError(err error) (int, string, bool) {
	if err == nil {
		return 0, "", false
	}
	m := httpStatusPattern.FindStringSubmatch(strings.TrimSpace(err.Error()))
	if m == nil {
		return 0, "", false
	}
	status, _ := strconv.Atoi(m[1])
	body := strings.TrimSpace(m[2])
	var reply struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(body), &reply) == nil && reply.Message != "" {
		body = reply.Message
	}
	return status, body, true
}

func isNotFound(err error) bool {
	status, _, ok := parseNodeError(err)
	return ok && status == 404
}
