package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kinads-controlplane/pkg/config"
	"kinads-controlplane/pkg/db"
	"kinads-controlplane/pkg/gen"
	"kinads-controlplane/pkg/hashistack/secretmanager"
	"kinads-controlplane/pkg/logger"
	"kinads-controlplane/pkg/redis"
	"kinads-controlplane/services/exchange"
	"kinads-controlplane/services/payout"
	"kinads-controlplane/services/registry"
	"kinads-controlplane/services/revenue"
	"kinads-controlplane/services/wallet"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "payoutctl",
		Short: "Operate the KIN payout pipeline",
		Long: `payoutctl runs payout cycles by hand and inspects the state the
payout worker relies on: the dollar reserve and the hot wallet.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CONFIG_FILE or ./config.yaml)")

	root.AddCommand(
		newRunCmd(),
		newReserveCmd(),
		newWalletCmd(),
	)
	return root
}

type deps struct {
	fx.In

	Config   *config.Config
	Executor *payout.Executor
}

// withDeps starts the payout dependency graph, hands it to fn and stops it.
func withDeps(ctx context.Context, fn func(deps) error) error {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return err
		}
	}

	var d deps
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		fx.Invoke(migrate),
		registry.Module,
		revenue.Module,
		exchange.Module,
		wallet.Module,
		payout.Module,
		fx.Populate(&d),
		fx.WithLogger(func(*zap.Logger) fxevent.Logger { return fxevent.NopLogger }),
	)

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := app.Stop(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("failed to stop", zap.Error(err))
		}
	}()

	return fn(d)
}

func migrate(conn *gorm.DB, cfg *config.Config) error {
	models := append(registry.Models(), revenue.Models()...)
	models = append(models, payout.Models()...)
	return db.Migrate(conn, cfg, models...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
