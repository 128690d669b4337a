package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/require"

	"kinads-controlplane/services/wallet"
)

func newPayoutMux(t *testing.T, rec *walletRecorder, secret string) *runtime.ServeMux {
	t.Helper()
	mux := runtime.NewServeMux()
	require.NoError(t, RegisterRoutes(mux, NewHandler(rec.wallet(), secret, 4)))
	return mux
}

func postPayout(mux http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payout", strings.NewReader(body))
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestBulkPayout(t *testing.T) {
	rec := &walletRecorder{fail: map[string]bool{"GBAD": true}}
	mux := newPayoutMux(t, rec, "s3cret")

	resp := postPayout(mux, "s3cret", `{"entries":{"GB":"20","GA":"10","GBAD":"5"},"memo":"1-KAD1-bonus"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var results []BulkResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &results))
	require.Len(t, results, 3)

	require.Equal(t, "GA", results[0].Wallet)
	require.Equal(t, "tx-GA", results[0].Tx)
	require.Equal(t, "GB", results[1].Wallet)
	require.Equal(t, "tx-GB", results[1].Tx)
	require.Equal(t, "GBAD", results[2].Wallet)
	require.Empty(t, results[2].Tx)
	require.NotEmpty(t, results[2].Error)

	sent := rec.sent()
	require.Len(t, sent, 2)
	for _, tr := range sent {
		require.Equal(t, "1-KAD1-bonus", tr.Memo)
	}
}

func TestBulkPayoutRejections(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		key    string
		body   string
		status int
	}{
		{name: "missing key", secret: "s3cret", body: `{"entries":{"GA":"1"},"memo":"m"}`, status: http.StatusUnauthorized},
		{name: "wrong key", secret: "s3cret", key: "guess", body: `{"entries":{"GA":"1"},"memo":"m"}`, status: http.StatusUnauthorized},
		{name: "no secret configured", key: "anything", body: `{"entries":{"GA":"1"},"memo":"m"}`, status: http.StatusUnauthorized},
		{name: "missing memo", secret: "s3cret", key: "s3cret", body: `{"entries":{"GA":"1"}}`, status: http.StatusBadRequest},
		{name: "missing entries", secret: "s3cret", key: "s3cret", body: `{"memo":"m"}`, status: http.StatusBadRequest},
		{name: "negative amount", secret: "s3cret", key: "s3cret", body: `{"entries":{"GA":"-1"},"memo":"m"}`, status: http.StatusBadRequest},
		{name: "malformed body", secret: "s3cret", key: "s3cret", body: `{`, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &walletRecorder{}
			resp := postPayout(newPayoutMux(t, rec, tc.secret), tc.key, tc.body)
			require.Equal(t, tc.status, resp.Code)

			var body map[string]map[string]any
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"]["code"])
			require.Empty(t, rec.sent())
		})
	}
}

func TestWalletStatus(t *testing.T) {
	mux := newPayoutMux(t, &walletRecorder{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"balance":"1000","public_address":"GHOT"}`, rec.Body.String())
}

func TestWalletStatusUnavailable(t *testing.T) {
	mux := runtime.NewServeMux()
	failing := wallet.FuncWallet{BalanceFn: func(context.Context) (wallet.Status, error) {
		return wallet.Status{}, errors.New("connection refused")
	}}
	require.NoError(t, RegisterRoutes(mux, NewHandler(failing, "", 1)))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet/status", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
