package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const bithumbSuccess = "0"

// Bithumb talks to the Bithumb Global open API.
type Bithumb struct {
	baseURL string
	apiKey  string
	secret  string
	symbol  string
	client  *http.Client
	limiter *rate.Limiter
	ids     *snowflake.Node
	now     func() time.Time
}

type BithumbConfig struct {
	BaseURL   string
	APIKey    string
	Secret    string
	Symbol    string
	RateLimit float64
}

func NewBithumb(cfg BithumbConfig, client *http.Client, ids *snowflake.Node) *Bithumb {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Bithumb{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		symbol:  cfg.Symbol,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		ids:     ids,
		now:     time.Now,
	}
}

type bithumbEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type bithumbOrderBook struct {
	Asks [][]decimal.Decimal `json:"s"`
	Bids [][]decimal.Decimal `json:"b"`
}

type bithumbOrder struct {
	OrderID string `json:"orderId"`
}

type bithumbOrderDetail struct {
	List []struct {
		GetCount decimal.Decimal `json:"getCount"`
		Fee      decimal.Decimal `json:"fee"`
		Price    decimal.Decimal `json:"price"`
	} `json:"list"`
}

// Asks returns the sell side of the book, best price first.
func (b *Bithumb) Asks(ctx context.Context) ([]Level, error) {
	var book bithumbOrderBook
	endpoint := b.baseURL + "/spot/orderBook?" + url.Values{"symbol": {b.symbol}}.Encode()
	if err := b.do(ctx, http.MethodGet, endpoint, nil, &book); err != nil {
		return nil, err
	}
	return toLevels(book.Asks)
}

// PlaceMarketBuy spends dollars of quote currency at market.
func (b *Bithumb) PlaceMarketBuy(ctx context.Context, dollars decimal.Decimal) (string, error) {
	params := map[string]any{
		"apiKey":    b.apiKey,
		"msgNo":     b.ids.Generate().String(),
		"price":     json.Number("-1"),
		"quantity":  json.Number(dollars.String()),
		"side":      "buy",
		"symbol":    b.symbol,
		"timestamp": json.Number(strconv.FormatInt(b.now().UnixMilli(), 10)),
		"type":      "market",
	}

	var order bithumbOrder
	if err := b.do(ctx, http.MethodPost, b.baseURL+"/spot/placeOrder", b.signed(params), &order); err != nil {
		return "", err
	}
	if order.OrderID == "" {
		return "", fmt.Errorf("%w: placeOrder returned no order id", ErrExchangeAPI)
	}
	return order.OrderID, nil
}

// OrderFills returns the executions of an order.
func (b *Bithumb) OrderFills(ctx context.Context, orderID string) ([]Fill, error) {
	params := map[string]any{
		"apiKey":    b.apiKey,
		"count":     json.Number("100"),
		"msgNo":     b.ids.Generate().String(),
		"orderId":   orderID,
		"page":      json.Number("1"),
		"symbol":    b.symbol,
		"timestamp": json.Number(strconv.FormatInt(b.now().UnixMilli(), 10)),
	}

	var detail bithumbOrderDetail
	if err := b.do(ctx, http.MethodPost, b.baseURL+"/spot/orderDetail", b.signed(params), &detail); err != nil {
		return nil, err
	}

	fills := make([]Fill, 0, len(detail.List))
	for _, f := range detail.List {
		fills = append(fills, Fill{Quantity: f.GetCount, Fee: f.Fee, Price: f.Price})
	}
	return fills, nil
}

// Sign is the lowercase hex HMAC-SHA256 over the parameters sorted by key
// and joined as k=v pairs with '&'.
func Sign(secret string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fmt.Sprint(params[k]))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Bithumb) signed(params map[string]any) map[string]any {
	params["signature"] = Sign(b.secret, params)
	return params
}

func (b *Bithumb) do(ctx context.Context, method, endpoint string, body map[string]any, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrExchangeAPI, req.URL.Path, resp.StatusCode)
	}

	var env bithumbEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrExchangeAPI, err)
	}
	if env.Code != bithumbSuccess {
		return fmt.Errorf("%w: code %s: %s", ErrExchangeAPI, env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrExchangeAPI, err)
	}
	return nil
}

func toLevels(rows [][]decimal.Decimal) ([]Level, error) {
	levels := make([]Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: malformed order book row", ErrExchangeAPI)
		}
		levels = append(levels, Level{Price: row[0], Volume: row[1]})
	}
	return levels, nil
}
