package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Gateway submits on-chain token movements. Implementations must be
// at-most-once per call from the caller's perspective: a request id
// accompanies every submission so the signer can deduplicate internal
// retries.
type Gateway interface {
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	Mint(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// Client talks to the token signer service, which holds the treasury
// key and broadcasts ERC-20 calls. It returns the transaction hash of
// the submitted transfer.
type Client struct {
	baseURL  string
	apiKey   string
	contract string
	http     *http.Client
}

func NewClient() *Client {
	viper.SetDefault("chain.signer_url", "http://localhost:8570")
	viper.SetDefault("chain.request_timeout", 30*time.Second)

	return &Client{
		baseURL:  viper.GetString("chain.signer_url"),
		apiKey:   viper.GetString("chain.api_key"),
		contract: viper.GetString("chain.contract_address"),
		http: &http.Client{
			Timeout: viper.GetDuration("chain.request_timeout"),
		},
	}
}

// Transfer sends tokens from the treasury wallet to the destination
// address and returns the on-chain transaction hash.
func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	return c.submit(ctx, "/transfer", to, amount)
}

// Mint mints new tokens to the destination address. Admin-only on the
// signer side.
func (c *Client) Mint(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	return c.submit(ctx, "/mint", to, amount)
}

func (c *Client) submit(ctx context.Context, path, to string, amount decimal.Decimal) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"to":       to,
		"amount":   amount.String(),
		"contract": c.contract,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[CHAIN] Signer rejected %s: status=%d body=%s", path, resp.StatusCode, body)
		return "", fmt.Errorf("signer returned status %d", resp.StatusCode)
	}

	var result struct {
		TxHash string `json:"txHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("invalid signer response: %w", err)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("signer returned empty transaction hash")
	}

	return result.TxHash, nil
}
