package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/brave-intl/bat-contribution-engine/pkg/server"
)

var Module = fx.Module("httpapi",
	fx.Invoke(registerHealthEndpoint),
)

// healthzResponse mirrors what the gRPC health service already reports, so
// the HTTP gateway's /healthz and a grpc_health_v1 client checking the same
// process never disagree.
type healthzResponse struct {
	Status string            `json:"status"`
	Deps   map[string]string `json:"deps,omitempty"`
}

func registerHealthEndpoint(mux *runtime.ServeMux, healthSrv *health.Server) {
	if err := mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		resp := buildHealthzResponse(r.Context(), healthSrv)
		w.Header().Set("Content-Type", "application/json")
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING.String() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}); err != nil {
		zap.L().Error("failed to register health endpoint", zap.Error(err))
	}
}

func buildHealthzResponse(ctx context.Context, healthSrv *health.Server) healthzResponse {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING.String()
	if overall, err := healthSrv.Check(ctx, &grpc_health_v1.HealthCheckRequest{}); err == nil {
		status = overall.GetStatus().String()
	}

	deps := make(map[string]string)
	for _, name := range []string{server.ServiceDB, server.ServiceRedis} {
		resp, err := healthSrv.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: name})
		if err != nil {
			continue
		}
		deps[name] = resp.GetStatus().String()
	}
	return healthzResponse{Status: status, Deps: deps}
}
