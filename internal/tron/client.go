// Package tron talks to a TRON full node through the TronGrid-compatible
// wallet HTTP API.
package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tronfunder/internal/apperr"
)

// DefaultNodeURL is the public TronGrid endpoint.
const DefaultNodeURL = "https://api.trongrid.io"

const (
	apiKeyHeader   = "TRON-PRO-API-KEY"
	receiptSuccess = "SUCCESS"
	maxErrorBody   = 512
)

// Client reads chain state. It holds no credentials and is safe for
// concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type ClientConfig struct {
	NodeURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("node url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.NodeURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}, nil
}

// apiError is the error envelope the wallet API returns with status 200.
type apiError struct {
	Error string `json:"Error"`
}

type accountResponse struct {
	apiError
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// TransactionInfo is the subset of gettransactioninfobyid we rely on. An
// unknown or not yet solidified transaction comes back as an empty object.
type TransactionInfo struct {
	ID          string `json:"id"`
	BlockNumber int64  `json:"blockNumber"`
	Receipt     struct {
		Result string `json:"result"`
	} `json:"receipt"`
}

// Succeeded reports whether the receipt carries a SUCCESS result.
func (t *TransactionInfo) Succeeded() bool {
	return t != nil && t.Receipt.Result == receiptSuccess
}

// ReadBalance returns the TRX balance of address in sun. Accounts that were
// never activated have no balance field and read as zero.
func (c *Client) ReadBalance(ctx context.Context, address string) (int64, error) {
	var resp accountResponse
	err := c.post(ctx, "/wallet/getaccount", map[string]any{
		"address": address,
		"visible": true,
	}, &resp)
	if err != nil {
		return 0, apperr.Upstream(err, "read balance of %s", address)
	}
	if resp.Error != "" {
		return 0, apperr.Upstream(fmt.Errorf("%s", resp.Error), "read balance of %s", address)
	}
	return resp.Balance, nil
}

// TransactionInfo fetches execution info for txID.
func (c *Client) TransactionInfo(ctx context.Context, txID string) (*TransactionInfo, error) {
	var info TransactionInfo
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", map[string]any{"value": txID}, &info); err != nil {
		return nil, apperr.Upstream(err, "transaction info %s", txID)
	}
	return &info, nil
}

// TransactionSucceeded reports whether txID is in a block with a successful
// receipt. A transaction the node does not know yet is not an error.
func (c *Client) TransactionSucceeded(ctx context.Context, txID string) (bool, error) {
	info, err := c.TransactionInfo(ctx, txID)
	if err != nil {
		return false, err
	}
	return info.Succeeded(), nil
}

// Ping checks that the node answers.
func (c *Client) Ping(ctx context.Context) error {
	var block struct {
		apiError
		BlockID string `json:"blockID"`
	}
	if err := c.post(ctx, "/wallet/getnowblock", map[string]any{}, &block); err != nil {
		return err
	}
	if block.Error != "" {
		return fmt.Errorf("getnowblock: %s", block.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
