package callback

import (
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// RegisterRoutes mounts GET /callback/{network}.
func RegisterRoutes(mux *runtime.ServeMux, g *Gateway) error {
	if err := mux.HandlePath(http.MethodGet, "/callback/{network}", func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		resp := g.Handle(r.Context(), Request{
			Network:      params["network"],
			Query:        r.URL.Query(),
			ForwardedFor: r.Header.Get("X-Forwarded-For"),
			RemoteAddr:   r.RemoteAddr,
		})

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}); err != nil {
		zap.L().Error("failed to register callback endpoint", zap.Error(err))
		return err
	}
	return nil
}
