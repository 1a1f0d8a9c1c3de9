package algorand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// SignerClient calls the custodial signing service, which owns the funding
// and creator keys and decrypts user mnemonics to sign clawbacks.
type SignerClient struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

func NewSignerClient(baseURL, token string, httpClient *http.Client) (*SignerClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("signer url is required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse signer url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SignerClient{baseURL: base, token: token, http: httpClient}, nil
}

type createAssetSpec struct {
	CollectibleID string `json:"collectibleId"`
	UnitName      string `json:"unitName"`
	AssetName     string `json:"assetName"`
	URL           string `json:"url"`
	MetadataHash  string `json:"metadataHash,omitempty"`
	Edition       int    `json:"edition"`
	TotalEditions int    `json:"totalEditions"`
}

type createAssetsRequest struct {
	Assets []createAssetSpec `json:"assets"`
}

type clawbackRequest struct {
	AssetIndex         uint64 `json:"assetIndex"`
	EncryptedMnemonic  string `json:"encryptedMnemonic"`
	FromAccountAddress string `json:"fromAccountAddress"`
}

type fundRequest struct {
	EncryptedMnemonic string `json:"encryptedMnemonic"`
	Address           string `json:"address"`
	InitialBalance    uint64 `json:"initialBalance"`
}

type signedResponse struct {
	SignedTransactions []string `json:"signedTransactions"`
	TransactionIDs     []string `json:"transactionIds"`
}

// CreateAssets signs one asset creation per collectible, in input order.
func (s *SignerClient) CreateAssets(ctx context.Context, collectibles []models.Collectible, templates []models.CollectibleTemplate) (GeneratedTransactions, error) {
	byID := make(map[string]models.CollectibleTemplate, len(templates))
	for _, tmpl := range templates {
		byID[tmpl.ID.String()] = tmpl
	}

	specs := make([]createAssetSpec, 0, len(collectibles))
	for _, collectible := range collectibles {
		tmpl, ok := byID[collectible.TemplateID.String()]
		if !ok {
			return GeneratedTransactions{}, fmt.Errorf("no template %s for collectible %s", collectible.TemplateID, collectible.ID)
		}
		spec := createAssetSpec{
			CollectibleID: collectible.ID.String(),
			UnitName:      unitName(tmpl.UniqueCode),
			AssetName:     fmt.Sprintf("%s %d/%d", tmpl.Title, collectible.Edition, tmpl.TotalEditions),
			URL:           tmpl.ImageURL,
			Edition:       collectible.Edition,
			TotalEditions: tmpl.TotalEditions,
		}
		if tmpl.AssetURL != nil && *tmpl.AssetURL != "" {
			spec.URL = *tmpl.AssetURL
		}
		if tmpl.MetadataHash != nil {
			spec.MetadataHash = *tmpl.MetadataHash
		}
		specs = append(specs, spec)
	}

	out, err := s.sign(ctx, "/v1/transactions/create-assets", createAssetsRequest{Assets: specs})
	if err != nil {
		return GeneratedTransactions{}, err
	}
	if out.Len() != len(collectibles) {
		return GeneratedTransactions{}, fmt.Errorf("signer returned %d transactions for %d collectibles", out.Len(), len(collectibles))
	}
	return out, nil
}

func (s *SignerClient) Clawback(ctx context.Context, req ClawbackRequest) (GeneratedTransactions, error) {
	return s.sign(ctx, "/v1/transactions/clawback", clawbackRequest(req))
}

func (s *SignerClient) InitialFund(ctx context.Context, req FundRequest) (GeneratedTransactions, error) {
	return s.sign(ctx, "/v1/transactions/initial-fund", fundRequest(req))
}

func (s *SignerClient) sign(ctx context.Context, path string, payload any) (GeneratedTransactions, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return GeneratedTransactions{}, fmt.Errorf("encode signer request: %w", err)
	}

	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return GeneratedTransactions{}, fmt.Errorf("build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return GeneratedTransactions{}, fmt.Errorf("signer %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return GeneratedTransactions{}, fmt.Errorf("signer %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded signedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return GeneratedTransactions{}, fmt.Errorf("decode signer response: %w", err)
	}
	if len(decoded.SignedTransactions) != len(decoded.TransactionIDs) {
		return GeneratedTransactions{}, fmt.Errorf("signer %s: %d signed transactions but %d ids", path, len(decoded.SignedTransactions), len(decoded.TransactionIDs))
	}

	out := GeneratedTransactions{
		SignedTransactions: make([][]byte, 0, len(decoded.SignedTransactions)),
		TransactionIDs:     decoded.TransactionIDs,
	}
	for _, encoded := range decoded.SignedTransactions {
		raw, err := DecodeSignedTransaction(encoded)
		if err != nil {
			return GeneratedTransactions{}, err
		}
		out.SignedTransactions = append(out.SignedTransactions, raw)
	}
	return out, nil
}

// unitName truncates to the 8 byte limit asset unit names have on chain.
func unitName(code string) string {
	if len(code) <= 8 {
		return code
	}
	return code[:8]
}
