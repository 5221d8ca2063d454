package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/apiforge-ai/apiforge/internal/domain"
)

// HealthResponse reports daemon liveness and a registry summary.
type HealthResponse struct {
	Body struct {
		Status        string `json:"status"`
		Servers       int    `json:"servers"`
		ActiveServers int    `json:"active_servers"`
	}
}

// DispatchHealthResponse lists dispatch telemetry for all tracked servers.
type DispatchHealthResponse struct {
	Body struct {
		Servers []domain.DispatchHealth `json:"servers"`
	}
}

// RegisterHealthRoutes sets up the daemon health endpoints.
func RegisterHealthRoutes(routerAPI huma.API, deps Dependencies, apiPathPrefix string) {
	healthAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Health"}

	huma.Register(
		healthAPI,
		huma.Operation{
			OperationID: "getHealth",
			Method:      http.MethodGet,
			Summary:     "Daemon liveness and registry summary",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
			servers := deps.Registry.List()
			active := 0
			for _, srv := range servers {
				if srv.Active {
					active++
				}
			}

			resp := &HealthResponse{}
			resp.Body.Status = "ok"
			resp.Body.Servers = len(servers)
			resp.Body.ActiveServers = active
			return resp, nil
		},
	)

	huma.Register(
		healthAPI,
		huma.Operation{
			OperationID: "listDispatchHealth",
			Method:      http.MethodGet,
			Path:        "/servers",
			Summary:     "Dispatch telemetry for all deployed servers",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*DispatchHealthResponse, error) {
			resp := &DispatchHealthResponse{}
			resp.Body.Servers = deps.Telemetry.List()
			return resp, nil
		},
	)
}
