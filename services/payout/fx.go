package payout

import (
	"kinads-controlplane/pkg/config"
	"kinads-controlplane/pkg/task"
	"kinads-controlplane/pkg/taskname"
	"kinads-controlplane/services/exchange"
	"kinads-controlplane/services/revenue"
	"kinads-controlplane/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		NewRepository,
		provideLock,
		provideExecutor,
	),
)

// HTTP mounts the operator endpoints on the shared mux.
var HTTP = fx.Module("payout.http",
	fx.Provide(provideHandler),
	fx.Invoke(RegisterRoutes),
)

// Worker runs the daily scheduler and handles the payout task.
var Worker = fx.Module("payout.worker",
	fx.Provide(provideScheduler),
	fx.Invoke(
		registerTaskHandlers,
		StartScheduler,
	),
)

func provideLock(cfg *config.Config, rdb *redis.Client) Locker {
	return NewCycleLock(rdb, cfg.Payout.LockTTL)
}

type executorParams struct {
	fx.In

	Config     *config.Config
	Aggregator *revenue.Aggregator
	Oracle     *exchange.Oracle
	Wallet     wallet.Wallet
	Repo       Repository
	Lock       Locker
	Node       *snowflake.Node
}

func provideExecutor(p executorParams) *Executor {
	return NewExecutor(ExecutorParams{
		Revenue: p.Aggregator,
		Repo:    p.Repo,
		Pricer:  p.Oracle,
		Wallet:  p.Wallet,
		Lock:    p.Lock,
		Node:    p.Node,
		Config: Settings{
			Production:  p.Config.IsProduction(),
			DryRunPrice: decimal.NewFromFloat(p.Config.Payout.DryRunPrice),
			MemoPrefix:  p.Config.Payout.MemoPrefix,
		},
	})
}

func provideHandler(cfg *config.Config, w wallet.Wallet) *Handler {
	return NewHandler(w, cfg.Payout.Secret, cfg.Payout.Parallelism)
}

func provideScheduler(cfg *config.Config, enqueuer task.Enqueuer) *Scheduler {
	return NewScheduler(enqueuer, cfg.Payout.RunHour, cfg.Payout.DayDelay)
}

func registerTaskHandlers(mux *asynq.ServeMux, e *Executor) {
	mux.HandleFunc(taskname.PayoutCycleRun, e.HandleCycleTask)
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&PayoutRecord{}, &Setting{}, &Cycle{}}
}
