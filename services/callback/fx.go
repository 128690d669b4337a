package callback

import (
	"time"

	"kinads-controlplane/pkg/config"
	"kinads-controlplane/pkg/taskname"
	"kinads-controlplane/services/registry"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("callback.service",
	fx.Provide(
		NewEventRepository,
		provideGateway,
	),
)

// HTTP mounts the callback route on the shared mux.
var HTTP = fx.Module("callback.http",
	fx.Invoke(RegisterRoutes),
)

// Tasks registers the expired event purge on the worker mux.
var Tasks = fx.Module("callback.tasks",
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux, g *Gateway) {
	mux.HandleFunc(taskname.CallbackEventsPurge, g.HandlePurgeTask)
}

type gatewayParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Cache     *registry.Cache
	Events    EventRepository
}

func provideGateway(p gatewayParams) (*Gateway, error) {
	networks, err := NewNetworks(p.Config.Networks)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(p.Config.Callback.Location)
	if err != nil {
		return nil, err
	}

	g := NewGateway(p.Cache, p.Events,
		WithNetworks(networks),
		WithLocation(loc),
		WithMaxAge(p.Config.Callback.MaxEventAge),
		WithEventTTL(p.Config.Callback.EventTTL),
		WithForwarder(NewForwarder(p.Config.Callback.ForwardTimeout)),
	)

	p.Lifecycle.Append(fx.Hook{
		OnStop: g.Wait,
	})

	return g, nil
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&RewardEvent{}}
}
