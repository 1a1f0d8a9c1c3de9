package algorand

import (
	"context"
	"fmt"
	"net/http"

	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// Client implements Adapter on top of an algod node and the signing service.
type Client struct {
	node   *NodeClient
	signer *SignerClient
}

var _ Adapter = (*Client)(nil)

func NewClient(cfg config.AlgorandConfig) (*Client, error) {
	node, err := NewNodeClient(NodeClientParams{
		BaseURL:          cfg.AlgodURL,
		Token:            cfg.AlgodToken,
		RequestTimeout:   cfg.RequestTimeout,
		ConfirmationWait: cfg.ConfirmationWait,
	})
	if err != nil {
		return nil, err
	}
	signer, err := NewSignerClient(cfg.SignerURL, cfg.SignerToken, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("signer client: %w", err)
	}
	return &Client{node: node, signer: signer}, nil
}

func (c *Client) SubmitTransaction(ctx context.Context, signedTransactions [][]byte) error {
	return c.node.Submit(ctx, signedTransactions)
}

func (c *Client) WaitForAllConfirmations(ctx context.Context, transactionIDs []string) ([]PendingTransactionInfo, error) {
	return c.node.WaitForAllConfirmations(ctx, transactionIDs)
}

func (c *Client) GenerateCreateAssetTransactions(ctx context.Context, collectibles []models.Collectible, templates []models.CollectibleTemplate) (GeneratedTransactions, error) {
	return c.signer.CreateAssets(ctx, collectibles, templates)
}

func (c *Client) GenerateClawbackTransactions(ctx context.Context, req ClawbackRequest) (GeneratedTransactions, error) {
	return c.signer.Clawback(ctx, req)
}

func (c *Client) GetAssetInfo(ctx context.Context, assetIndex uint64) (*AssetInfo, error) {
	return c.node.AssetInfo(ctx, assetIndex)
}

func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	return c.node.AccountInfo(ctx, address)
}

func (c *Client) InitialFundTransactions(ctx context.Context, req FundRequest) (GeneratedTransactions, error) {
	return c.signer.InitialFund(ctx, req)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.node.Ping(ctx)
}
