// Package api defines the HTTP surface of the daemon: document import and
// override management, server deployment, agent chat, the JSON-RPC bridge,
// and health reporting. Handlers return domain errors from internal/errors;
// the daemon's error mapper converts them to HTTP status codes.
package api

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/contracts"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/store"
	"github.com/apiforge-ai/apiforge/internal/upstream"
)

// APIVersion is the version used in URL paths.
const APIVersion = "v1"

// Dependencies carries the daemon components the route handlers operate on.
type Dependencies struct {
	// Logger for handler operations.
	Logger hclog.Logger

	// Registry holds the deployed servers and their compiled tools.
	Registry *registry.Registry

	// Store persists documents and server deployment records.
	Store store.Store

	// Upstream dispatches tool invocations to backend APIs.
	Upstream *upstream.Client

	// Telemetry tracks per-server dispatch outcomes.
	Telemetry contracts.DispatchMonitor
}

// Validate ensures all required dependencies are provided.
func (d Dependencies) Validate() error {
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}
	if d.Registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if d.Store == nil || reflect.ValueOf(d.Store).IsNil() {
		return fmt.Errorf("store cannot be nil")
	}
	if d.Upstream == nil {
		return fmt.Errorf("upstream client cannot be nil")
	}
	if d.Telemetry == nil || reflect.ValueOf(d.Telemetry).IsNil() {
		return fmt.Errorf("dispatch telemetry cannot be nil")
	}
	return nil
}

// RegisterRoutes registers all API routes on the provided Huma router.
// This is the single source of truth for the API route structure.
// Returns the API path prefix (e.g., "/api/v1") under which the routes are created.
func RegisterRoutes(router huma.API, deps Dependencies) (string, error) {
	if router == nil || reflect.ValueOf(router).IsNil() {
		return "", fmt.Errorf("router cannot be nil")
	}
	if err := deps.Validate(); err != nil {
		return "", err
	}

	// Safe way to ensure /api/{version}.
	apiPathPrefix, err := url.JoinPath("/api", APIVersion)
	if err != nil {
		return "", fmt.Errorf("failed to construct API path prefix: %w", err)
	}

	// Group all routes under the /api/{version} prefix.
	versionedGroup := huma.NewGroup(router, apiPathPrefix)
	RegisterDocumentRoutes(versionedGroup, deps, "/documents")
	RegisterServerRoutes(versionedGroup, deps, "/servers")
	RegisterChatRoutes(versionedGroup, deps, "/chat")
	RegisterMCPRoutes(versionedGroup, deps, "/mcp")
	RegisterHealthRoutes(versionedGroup, deps, "/health")

	return apiPathPrefix, nil
}
