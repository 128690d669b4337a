package main

import (
	"log"

	_ "time/tzdata"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kinads-controlplane/pkg/config"
	"kinads-controlplane/pkg/db"
	"kinads-controlplane/pkg/gen"
	"kinads-controlplane/pkg/hashistack/secretmanager"
	"kinads-controlplane/pkg/httpapi"
	"kinads-controlplane/pkg/logger"
	"kinads-controlplane/pkg/otelcol"
	"kinads-controlplane/pkg/profiling"
	"kinads-controlplane/pkg/redis"
	"kinads-controlplane/pkg/server"
	"kinads-controlplane/pkg/task"
	"kinads-controlplane/services/callback"
	"kinads-controlplane/services/exchange"
	"kinads-controlplane/services/payout"
	"kinads-controlplane/services/registry"
	"kinads-controlplane/services/revenue"
	"kinads-controlplane/services/wallet"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		fx.Invoke(migrate),
		task.Client,
		task.Server,
		registry.Module,
		revenue.Module,
		exchange.Module,
		wallet.Module,
		payout.Module,
		payout.HTTP,
		payout.Worker,
		callback.Module,
		callback.Tasks,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(conn *gorm.DB, cfg *config.Config) error {
	models := append(registry.Models(), callback.Models()...)
	models = append(models, revenue.Models()...)
	models = append(models, payout.Models()...)
	return db.Migrate(conn, cfg, models...)
}
