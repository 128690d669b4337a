package payout

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"kinads-controlplane/pkg/errutil"
	"kinads-controlplane/services/wallet"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const apiKeyHeader = "x-api-key"

var errInvalidAPIKey = errors.New("invalid api key")

// BulkRequest pays each wallet the mapped KIN amount with one shared memo.
type BulkRequest struct {
	Entries map[string]decimal.Decimal `json:"entries"`
	Memo    string                     `json:"memo"`
}

type BulkResult struct {
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
	Tx     string          `json:"tx,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler serves the operator payout endpoints.
type Handler struct {
	wallet      wallet.Wallet
	secret      string
	parallelism int
}

func NewHandler(w wallet.Wallet, secret string, parallelism int) *Handler {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Handler{wallet: w, secret: secret, parallelism: parallelism}
}

// Authorize compares key with the payout secret. An empty secret refuses
// every key.
func (h *Handler) Authorize(key string) error {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.secret)) != 1 {
		return errutil.Unauthorized("invalid api key", errInvalidAPIKey)
	}
	return nil
}

// BulkPay submits every entry concurrently. One failed transfer does not
// stop the others; its result carries the error.
func (h *Handler) BulkPay(ctx context.Context, req BulkRequest) ([]BulkResult, error) {
	if req.Memo == "" {
		return nil, errutil.BadRequest("memo is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "memo", Message: "required"}))
	}
	if len(req.Entries) == 0 {
		return nil, errutil.BadRequest("entries are required", nil,
			errutil.WithDetails(errutil.Detail{Field: "entries", Message: "required"}))
	}

	wallets := make([]string, 0, len(req.Entries))
	for w, amount := range req.Entries {
		if !amount.IsPositive() {
			return nil, errutil.ValidationFailed("amount must be positive", nil,
				errutil.WithDetails(errutil.Detail{Field: "entries." + w, Message: "must be positive"}))
		}
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	results := make([]BulkResult, len(wallets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, w := range wallets {
		results[i] = BulkResult{Wallet: w, Amount: req.Entries[w]}
		g.Go(func() error {
			tx, err := h.wallet.Submit(gctx, wallet.Transfer{
				Destination: w,
				Memo:        req.Memo,
				Amount:      req.Entries[w],
			})
			if err != nil {
				transferTotal.WithLabelValues("bulk_failed").Inc()
				zap.L().Error("[Payout] bulk transfer failed", zap.String("wallet", w), zap.Error(err))
				results[i].Error = err.Error()
				return nil
			}
			transferTotal.WithLabelValues("bulk_paid").Inc()
			results[i].Tx = tx
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// RegisterRoutes mounts POST /payout and GET /wallet/status.
func RegisterRoutes(mux *runtime.ServeMux, h *Handler) error {
	if err := mux.HandlePath(http.MethodPost, "/payout", h.handleBulkPay); err != nil {
		zap.L().Error("failed to register payout endpoint", zap.Error(err))
		return err
	}
	if err := mux.HandlePath(http.MethodGet, "/wallet/status", h.handleWalletStatus); err != nil {
		zap.L().Error("failed to register wallet status endpoint", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) handleBulkPay(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := h.Authorize(r.Header.Get(apiKeyHeader)); err != nil {
		errutil.WriteJSON(w, err)
		return
	}

	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.WriteJSON(w, errutil.BadRequest("invalid request body", err))
		return
	}

	results, err := h.BulkPay(r.Context(), req)
	if err != nil {
		errutil.WriteJSON(w, err)
		return
	}
	errutil.WriteData(w, http.StatusOK, results)
}

func (h *Handler) handleWalletStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	status, err := h.wallet.Balance(r.Context())
	if err != nil {
		errutil.WriteJSON(w, errutil.BadGateway("wallet status unavailable", err))
		return
	}
	errutil.WriteData(w, http.StatusOK, status)
}
