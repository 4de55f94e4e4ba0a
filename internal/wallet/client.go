package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoWallet is returned when no server wallet has been provisioned for
// the user.
var ErrNoWallet = errors.New("no server wallet provisioned")

// Wallet is a custodial signing account plus its smart account, provisioned
// by the wallet service on the user's behalf.
type Wallet struct {
	Address             string `json:"address"`
	SmartAccountAddress string `json:"smart_account_address"`
}

// Call is a single contract call submitted through the smart account.
type Call struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

// Client talks to the external wallet provisioning service. All transaction
// signing happens on the service side; this client only submits prepared
// calldata.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// GetServerWallet returns the wallet provisioned for the user, or ErrNoWallet.
func (c *Client) GetServerWallet(ctx context.Context, userAddress string) (*Wallet, error) {
	var w Wallet
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/wallets/%s", userAddress), nil, &w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateServerWallet provisions a new server wallet and smart account for
// the user. Idempotent on the service side.
func (c *Client) CreateServerWallet(ctx context.Context, userAddress string) (*Wallet, error) {
	body := map[string]string{"user_address": userAddress}
	var w Wallet
	if err := c.do(ctx, http.MethodPost, "/v1/wallets", body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

type submitResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// SubmitCalls submits a batch of calls through the given smart account and
// returns the transaction hash. Fails as a unit.
func (c *Client) SubmitCalls(ctx context.Context, smartAccount string, calls []Call) (string, error) {
	body := map[string]any{"calls": calls}
	var resp submitResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/accounts/%s/calls", smartAccount), body, &resp)
	if err != nil {
		return "", err
	}
	if resp.TransactionHash == "" {
		return "", fmt.Errorf("wallet service returned empty transaction hash")
	}
	return resp.TransactionHash, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fail to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("fail to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wallet service request failed: %w", err)
	}
	defer c.closer(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoWallet
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("fail to decode wallet service response: %w", err)
		}
	}
	return nil
}

func (c *Client) closer(closer io.Closer) {
	if err := closer.Close(); err != nil {
		c.logger.Errorf("Failed to close: %v", err)
	}
}
