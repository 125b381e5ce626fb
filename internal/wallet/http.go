package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPClient implements Service against the platform wallet API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a wallet client for the given base URL.
// A zero timeout defaults to 5s.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type txnRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (c *HTTPClient) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/debit", userID, amount)
}

func (c *HTTPClient) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/credit", userID, amount)
}

func (c *HTTPClient) post(ctx context.Context, path, userID string, amount decimal.Decimal) error {
	body, err := json.Marshal(txnRequest{UserID: userID, Amount: amount})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusConflict:
		return ErrInsufficientFunds
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("wallet: unexpected status %d on %s", resp.StatusCode, path)
	}
}
