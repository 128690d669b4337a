package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// CoinTiger reads the public depth of the CoinTiger KIN market. It cannot
// trade.
type CoinTiger struct {
	baseURL string
	apiKey  string
	symbol  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewCoinTiger(baseURL, apiKey string, client *http.Client, limit float64) *CoinTiger {
	l := rate.Inf
	if limit > 0 {
		l = rate.Limit(limit)
	}
	return &CoinTiger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		symbol:  "kinusdt",
		client:  client,
		limiter: rate.NewLimiter(l, 1),
	}
}

type coinTigerDepth struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		DepthData struct {
			Tick struct {
				Asks [][]decimal.Decimal `json:"asks"`
			} `json:"tick"`
		} `json:"depth_data"`
	} `json:"data"`
}

func (c *CoinTiger) Asks(ctx context.Context) ([]Level, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("symbol", c.symbol)
	q.Set("type", "step0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/market/depth?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: depth returned status %d", ErrExchangeAPI, resp.StatusCode)
	}

	var depth coinTigerDepth
	if err := json.NewDecoder(resp.Body).Decode(&depth); err != nil {
		return nil, fmt.Errorf("%w: decode depth: %v", ErrExchangeAPI, err)
	}
	if depth.Code != "" && depth.Code != "0" {
		return nil, fmt.Errorf("%w: code %s: %s", ErrExchangeAPI, depth.Code, depth.Msg)
	}
	return toLevels(depth.Data.DepthData.Tick.Asks)
}
