package registry

import (
	"kinads-controlplane/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("registry.service",
	fx.Provide(
		NewRepository,
		provideCache,
	),
)

func provideCache(cfg *config.Config, repo Repository) *Cache {
	return NewCache(repo, cfg.Callback.CacheTTL)
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&App{}}
}
