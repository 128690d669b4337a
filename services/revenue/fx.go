package revenue

import (
	"kinads-controlplane/pkg/config"
	"kinads-controlplane/services/registry"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("revenue.service",
	fx.Provide(
		NewRepository,
		provideAggregator,
	),
)

func provideAggregator(cfg *config.Config, apps registry.Repository, reports Repository) *Aggregator {
	return NewAggregator(apps, reports, decimal.NewFromFloat(cfg.Payout.FeePercent), cfg.Payout.Parallelism)
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&DailyRevenueReport{}}
}
