package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/apiforge-ai/apiforge/internal/domain"
	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/store"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// ServerSummary is the API representation of one deployed server.
type ServerSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DocumentID   string    `json:"document_id"`
	BaseURL      string    `json:"base_url"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
	ToolCount    int       `json:"tool_count"`
}

// DeployRequest deploys a document's selected endpoints as a server.
type DeployRequest struct {
	Body struct {
		DocumentID string `json:"document_id" doc:"ID of the imported document to deploy"`
		Name       string `json:"name,omitempty"     doc:"Display name; defaults to the document name"`
		BaseURL    string `json:"base_url,omitempty" doc:"Override the document's base URL"`
	}
}

// ServerResponse wraps one server summary.
type ServerResponse struct {
	Body ServerSummary
}

// ServersResponse wraps the deployed server list.
type ServersResponse struct {
	Body []ServerSummary
}

// ServerLookupRequest identifies a server by id.
type ServerLookupRequest struct {
	ID string `doc:"ID of the server" path:"id"`
}

// ServerBaseURLRequest updates a server's base URL.
type ServerBaseURLRequest struct {
	ID   string `doc:"ID of the server" path:"id"`
	Body struct {
		BaseURL string `json:"base_url" doc:"New base URL for upstream dispatch"`
	}
}

// ServerToolsResponse lists a server's compiled tool definitions.
type ServerToolsResponse struct {
	Body struct {
		Tools     []tools.Definition `json:"tools"`
		ToolCount int                `json:"tool_count"`
	}
}

// ServerHealthResponse wraps one server's dispatch telemetry.
type ServerHealthResponse struct {
	Body domain.DispatchHealth
}

// RegisterServerRoutes sets up server deployment and lifecycle endpoints.
func RegisterServerRoutes(routerAPI huma.API, deps Dependencies, apiPathPrefix string) {
	serversAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Servers"}

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "deployServer",
			Method:      http.MethodPost,
			Summary:     "Deploy a document as a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *DeployRequest) (*ServerResponse, error) {
			return handleDeploy(deps, input.Body.DocumentID, input.Body.Name, input.Body.BaseURL)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "listServers",
			Method:      http.MethodGet,
			Summary:     "List all deployed servers",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*ServersResponse, error) {
			servers := deps.Registry.List()
			out := make([]ServerSummary, 0, len(servers))
			for _, srv := range servers {
				out = append(out, summarize(srv))
			}
			return &ServersResponse{Body: out}, nil
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "getServer",
			Method:      http.MethodGet,
			Path:        "/{id}",
			Summary:     "Get a deployed server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerLookupRequest) (*ServerResponse, error) {
			srv, err := deps.Registry.Get(input.ID)
			if err != nil {
				return nil, err
			}
			return &ServerResponse{Body: summarize(srv)}, nil
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "deleteServer",
			Method:      http.MethodDelete,
			Path:        "/{id}",
			Summary:     "Undeploy a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerLookupRequest) (*struct{}, error) {
			return handleUndeploy(deps, input.ID)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "activateServer",
			Method:      http.MethodPost,
			Path:        "/{id}/activate",
			Summary:     "Activate a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerLookupRequest) (*ServerResponse, error) {
			return handleSetActive(deps, input.ID, true)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "deactivateServer",
			Method:      http.MethodPost,
			Path:        "/{id}/deactivate",
			Summary:     "Deactivate a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerLookupRequest) (*ServerResponse, error) {
			return handleSetActive(deps, input.ID, false)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "updateServerBaseURL",
			Method:      http.MethodPatch,
			Path:        "/{id}/baseurl",
			Summary:     "Update a server's base URL",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerBaseURLRequest) (*ServerResponse, error) {
			return handleUpdateBaseURL(deps, input.ID, input.Body.BaseURL)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "listServerTools",
			Method:      http.MethodGet,
			Path:        "/{id}/tools",
			Summary:     "List a server's compiled tools",
			Tags:        append(tags, "Tools"),
		},
		func(ctx context.Context, input *ServerLookupRequest) (*ServerToolsResponse, error) {
			srv, err := deps.Registry.Get(input.ID)
			if err != nil {
				return nil, err
			}
			resp := &ServerToolsResponse{}
			resp.Body.Tools = srv.Definitions()
			resp.Body.ToolCount = len(resp.Body.Tools)
			return resp, nil
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "getServerHealth",
			Method:      http.MethodGet,
			Path:        "/{id}/health",
			Summary:     "Get a server's dispatch telemetry",
			Tags:        append(tags, "Health"),
		},
		func(ctx context.Context, input *ServerLookupRequest) (*ServerHealthResponse, error) {
			health, err := deps.Telemetry.Status(input.ID)
			if err != nil {
				return nil, err
			}
			return &ServerHealthResponse{Body: health}, nil
		},
	)
}

// handleDeploy compiles a document's selected endpoints, registers the result
// as an active server, and persists the deployment record.
func handleDeploy(deps Dependencies, documentID, name, baseURL string) (*ServerResponse, error) {
	doc, err := deps.Store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}

	compiled, err := endpoint.CompileDocument(doc)
	if err != nil {
		return nil, err
	}
	if len(compiled) == 0 {
		return nil, fmt.Errorf("%w: document %s has no selected endpoints", errors.ErrConfiguration, documentID)
	}

	if strings.TrimSpace(name) == "" {
		name = doc.Name
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = doc.BaseURL
	}

	srv := registry.Server{
		ID:         uuid.NewString(),
		Name:       name,
		DocumentID: documentID,
		BaseURL:    baseURL,
		Active:     true,
		Tools:      compiled,
	}
	if err := deps.Registry.Register(srv); err != nil {
		return nil, err
	}

	// Registry assigned RegisteredAt; read it back for persistence.
	srv, err = deps.Registry.Get(srv.ID)
	if err != nil {
		return nil, err
	}

	if err := deps.Store.SaveServer(store.ServerRecord{
		ID:           srv.ID,
		Name:         srv.Name,
		DocumentID:   srv.DocumentID,
		BaseURL:      srv.BaseURL,
		Active:       srv.Active,
		RegisteredAt: srv.RegisteredAt,
	}); err != nil {
		// Keep registry and store consistent: roll the registration back.
		_ = deps.Registry.Deregister(srv.ID)
		return nil, err
	}

	deps.Telemetry.Add(srv.ID)
	deps.Logger.Info("Server deployed", "id", srv.ID, "document", documentID, "tools", len(compiled))

	return &ServerResponse{Body: summarize(srv)}, nil
}

func handleUndeploy(deps Dependencies, id string) (*struct{}, error) {
	if err := deps.Registry.Deregister(id); err != nil {
		return nil, err
	}
	if err := deps.Store.DeleteServer(id); err != nil {
		return nil, err
	}
	deps.Telemetry.Remove(id)

	deps.Logger.Info("Server undeployed", "id", id)

	return &struct{}{}, nil
}

func handleSetActive(deps Dependencies, id string, active bool) (*ServerResponse, error) {
	if err := deps.Registry.SetActive(id, active); err != nil {
		return nil, err
	}
	if err := persistServer(deps, id); err != nil {
		return nil, err
	}

	srv, err := deps.Registry.Get(id)
	if err != nil {
		return nil, err
	}

	return &ServerResponse{Body: summarize(srv)}, nil
}

func handleUpdateBaseURL(deps Dependencies, id, baseURL string) (*ServerResponse, error) {
	if err := deps.Registry.UpdateBaseURL(id, baseURL); err != nil {
		return nil, err
	}
	if err := persistServer(deps, id); err != nil {
		return nil, err
	}

	srv, err := deps.Registry.Get(id)
	if err != nil {
		return nil, err
	}

	return &ServerResponse{Body: summarize(srv)}, nil
}

// persistServer writes the registry's current state for a server back to the
// store so restarts observe lifecycle changes.
func persistServer(deps Dependencies, id string) error {
	srv, err := deps.Registry.Get(id)
	if err != nil {
		return err
	}
	return deps.Store.SaveServer(store.ServerRecord{
		ID:           srv.ID,
		Name:         srv.Name,
		DocumentID:   srv.DocumentID,
		BaseURL:      srv.BaseURL,
		Active:       srv.Active,
		RegisteredAt: srv.RegisteredAt,
	})
}

func summarize(srv registry.Server) ServerSummary {
	return ServerSummary{
		ID:           srv.ID,
		Name:         srv.Name,
		DocumentID:   srv.DocumentID,
		BaseURL:      srv.BaseURL,
		Active:       srv.Active,
		RegisteredAt: srv.RegisteredAt,
		ToolCount:    len(srv.Tools),
	}
}
