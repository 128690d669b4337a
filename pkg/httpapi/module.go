package httpapi

import (
	"context"
	"net/http"

	"kinads-controlplane/pkg/errutil"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideHealth),
	fx.Invoke(registerEndpoints),
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

type HealthChecker struct {
	db    *gorm.DB
	redis *redis.Client
}

func ProvideHealth(p HealthParams) *HealthChecker {
	return &HealthChecker{db: p.DB, redis: p.Redis}
}

// Readiness pings every configured dependency.
func (h *HealthChecker) Readiness(ctx context.Context) Health {
	this := Health{Status: "healthy", Message: "OK"}

	if h.db != nil {
		dep := Dependency{Name: h.db.Name(), Status: "healthy", Message: "OK"}
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			dep.Status = "unhealthy"
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: "healthy", Message: "OK"}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status = "unhealthy"
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	for _, dep := range this.Deps {
		if dep.Status != "healthy" {
			this.Status = "unhealthy"
			this.Message = "dependency unavailable"
		}
	}

	return this
}

func registerEndpoints(mux *runtime.ServeMux, h *HealthChecker) error {
	if err := mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		errutil.WriteData(w, http.StatusOK, Health{Status: "healthy", Message: "OK"})
	}); err != nil {
		zap.L().Error("failed to register health endpoint", zap.Error(err))
		return err
	}

	if err := mux.HandlePath(http.MethodGet, "/readyz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		health := h.Readiness(r.Context())
		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		errutil.WriteData(w, status, health)
	}); err != nil {
		zap.L().Error("failed to register readiness endpoint", zap.Error(err))
		return err
	}

	metrics := promhttp.Handler()
	if err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		metrics.ServeHTTP(w, r)
	}); err != nil {
		zap.L().Error("failed to register metrics endpoint", zap.Error(err))
		return err
	}

	return nil
}
