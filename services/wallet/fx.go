package wallet

import (
	"kinads-controlplane/pkg/client"
	"kinads-controlplane/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(
		fx.Annotate(provideClient, fx.As(new(Wallet))),
	),
)

func provideClient(cfg *config.Config) *Client {
	return NewClient(cfg.Wallet.ServerURL, cfg.Wallet.Token, client.NewHTTPClient(cfg.Wallet.Timeout))
}
