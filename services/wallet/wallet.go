package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrTransferFailed is returned when the payment server refuses or fails a
// transfer.
var ErrTransferFailed = errors.New("transfer failed")

// Transfer is one KIN payment from the hot wallet.
type Transfer struct {
	Destination string
	Memo        string
	Amount      decimal.Decimal
}

// Status describes the hot wallet.
type Status struct {
	Balance       decimal.Decimal `json:"balance"`
	PublicAddress string          `json:"public_address"`
}

type Wallet interface {
	Submit(ctx context.Context, t Transfer) (string, error)
	Balance(ctx context.Context) (Status, error)
}

// FuncWallet adapts plain functions to Wallet.
type FuncWallet struct {
	SubmitFn  func(ctx context.Context, t Transfer) (string, error)
	BalanceFn func(ctx context.Context) (Status, error)
}

func (f FuncWallet) Submit(ctx context.Context, t Transfer) (string, error) {
	if f.SubmitFn == nil {
		return "", fmt.Errorf("%w: no submitter", ErrTransferFailed)
	}
	return f.SubmitFn(ctx, t)
}

func (f FuncWallet) Balance(ctx context.Context) (Status, error) {
	if f.BalanceFn == nil {
		return Status{}, nil
	}
	return f.BalanceFn(ctx)
}

// Client calls the payment server that holds the hot wallet key.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type payRequest struct {
	Destination string      `json:"destination"`
	Amount      json.Number `json:"amount"`
	Memo        string      `json:"memo"`
}

type payResponse struct {
	TxID  string `json:"tx_id"`
	Error string `json:"error,omitempty"`
}

func (c *Client) Submit(ctx context.Context, t Transfer) (string, error) {
	body, err := json.Marshal(payRequest{Destination: t.Destination, Amount: json.Number(t.Amount.String()), Memo: t.Memo})
	if err != nil {
		return "", err
	}

	var out payResponse
	if err := c.do(ctx, http.MethodPost, "/pay", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", fmt.Errorf("%w: payment server returned no transaction id", ErrTransferFailed)
	}
	return out.TxID, nil
}

func (c *Client) Balance(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrTransferFailed, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrTransferFailed, path, err)
	}
	return nil
}
