package exchange

import (
	"fmt"
	"strings"

	"kinads-controlplane/pkg/client"
	"kinads-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("exchange",
	fx.Provide(
		provideBithumb,
		provideOracle,
	),
)

func provideBithumb(cfg *config.Config, node *snowflake.Node) *Bithumb {
	return NewBithumb(BithumbConfig{
		BaseURL:   cfg.Exchange.BaseURL,
		APIKey:    cfg.Exchange.APIKey,
		Secret:    cfg.Exchange.Secret,
		Symbol:    cfg.Exchange.Symbol,
		RateLimit: cfg.Exchange.RateLimit,
	}, client.NewHTTPClient(cfg.Exchange.Timeout), node)
}

func provideOracle(cfg *config.Config, bithumb *Bithumb) (*Oracle, error) {
	var book OrderBook
	switch strings.ToLower(cfg.Exchange.Source) {
	case "", "bithumb":
		book = bithumb
	case "cointiger":
		book = NewCoinTiger(cfg.Exchange.CoinTigerURL, cfg.Exchange.CoinTigerKey,
			client.NewHTTPClient(cfg.Exchange.Timeout), cfg.Exchange.RateLimit)
	default:
		return nil, fmt.Errorf("unknown exchange source %q", cfg.Exchange.Source)
	}

	return NewOracle(book, bithumb, decimal.NewFromFloat(cfg.Exchange.MinBuyOrder), cfg.Exchange.SettlementDelay), nil
}
