package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	sig := Sign("secret", map[string]any{
		"type":      "market",
		"apiKey":    "key",
		"msgNo":     "1",
		"price":     json.Number("-1"),
		"quantity":  json.Number("12.5"),
		"side":      "buy",
		"symbol":    "KIN-USDT",
		"timestamp": json.Number("1586582640000"),
	})
	require.Equal(t, "bf26fa34652b0f8beb5f9ff37e60b78a888dff025d1c4f680e9b43bd3270454a", sig)
}

func newBithumbServer(t *testing.T, handler http.HandlerFunc) *Bithumb {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	b := NewBithumb(BithumbConfig{
		BaseURL: srv.URL + "/",
		APIKey:  "key",
		Secret:  "secret",
		Symbol:  "KIN-USDT",
	}, srv.Client(), node)
	b.now = func() time.Time { return time.UnixMilli(1586582640000) }
	return b
}

func decodeSigned(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	require.NoError(t, dec.Decode(&body))

	sig, ok := body["signature"].(string)
	require.True(t, ok)
	delete(body, "signature")
	require.Equal(t, Sign("secret", body), sig)
	return body
}

func TestBithumbAsks(t *testing.T) {
	b := newBithumbServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spot/orderBook", r.URL.Path)
		require.Equal(t, "KIN-USDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"code":"0","msg":"success","data":{"b":[["0.00009","5"]],"s":[["0.0001","100000"],["0.0002","50000"]],"ver":"1"}}`))
	})

	asks, err := b.Asks(context.Background())
	require.NoError(t, err)
	require.Len(t, asks, 2)
	require.True(t, d("0.0001").Equal(asks[0].Price))
	require.True(t, d("50000").Equal(asks[1].Volume))
}

func TestBithumbPlaceMarketBuy(t *testing.T) {
	b := newBithumbServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/spot/placeOrder", r.URL.Path)

		body := decodeSigned(t, r)
		require.Equal(t, "key", body["apiKey"])
		require.Equal(t, json.Number("-1"), body["price"])
		require.Equal(t, json.Number("12.5"), body["quantity"])
		require.Equal(t, "buy", body["side"])
		require.Equal(t, "market", body["type"])
		require.Equal(t, json.Number("1586582640000"), body["timestamp"])
		require.NotEmpty(t, body["msgNo"])

		_, _ = w.Write([]byte(`{"code":"0","msg":"success","data":{"orderId":"42","symbol":"KIN-USDT"}}`))
	})

	orderID, err := b.PlaceMarketBuy(context.Background(), d("12.5"))
	require.NoError(t, err)
	require.Equal(t, "42", orderID)
}

func TestBithumbOrderFills(t *testing.T) {
	b := newBithumbServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spot/orderDetail", r.URL.Path)

		body := decodeSigned(t, r)
		require.Equal(t, "42", body["orderId"])
		require.Equal(t, json.Number("100"), body["count"])
		require.Equal(t, json.Number("1"), body["page"])

		_, _ = w.Write([]byte(`{"code":"0","msg":"success","data":{"num":"2","list":[
			{"getCount":"1100","fee":"100","price":"0.0001"},
			{"getCount":"1000","fee":"0","price":"0.0004"}]}}`))
	})

	fills, err := b.OrderFills(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, fills, 2)

	price, err := RealizedPrice(fills)
	require.NoError(t, err)
	require.True(t, d("0.00025").Equal(price))
}

func TestBithumbErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"error code": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":"9002","msg":"signature error","data":null}`))
		},
		"http status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			b := newBithumbServer(t, handler)
			_, err := b.PlaceMarketBuy(context.Background(), decimal.NewFromInt(1))
			require.ErrorIs(t, err, ErrExchangeAPI)
		})
	}
}

func TestCoinTigerAsks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/market/depth", r.URL.Path)
		require.Equal(t, "kinusdt", r.URL.Query().Get("symbol"))
		require.Equal(t, "step0", r.URL.Query().Get("type"))
		require.Equal(t, "ct-key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"code":"0","msg":"suc","data":{"depth_data":{"tick":{"buys":[],"asks":[["0.0001",100000],["0.0002",100000]]}}}}`))
	}))
	defer srv.Close()

	ct := NewCoinTiger(srv.URL, "ct-key", srv.Client(), 0)
	asks, err := ct.Asks(context.Background())
	require.NoError(t, err)
	require.Len(t, asks, 2)

	price, err := Walk(asks, UntilDollars(d("25")))
	require.NoError(t, err)
	require.True(t, d("0.00015").Equal(price))
}
