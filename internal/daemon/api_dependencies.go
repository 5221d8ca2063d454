package daemon

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/contracts"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/store"
	"github.com/apiforge-ai/apiforge/internal/upstream"
)

// APIDependencies contains the required external dependencies for the API server.
// NewAPIDependencies should be used to create instances of APIDependencies.
type APIDependencies struct {
	// Addr specifies the network address to bind (e.g., "0.0.0.0:8090").
	Addr string

	// Registry holds the deployed servers and their compiled tools.
	Registry *registry.Registry

	// Store persists documents and server deployment records.
	Store store.Store

	// Upstream dispatches tool invocations to backend APIs.
	Upstream *upstream.Client

	// Telemetry tracks per-server dispatch outcomes.
	Telemetry contracts.DispatchMonitor

	// Logger for API server operations.
	Logger hclog.Logger
}

// NewAPIDependencies creates and validates APIDependencies.
func NewAPIDependencies(
	logger hclog.Logger,
	reg *registry.Registry,
	st store.Store,
	client *upstream.Client,
	telemetry contracts.DispatchMonitor,
	addr string,
) (APIDependencies, error) {
	deps := APIDependencies{
		Addr:      addr,
		Registry:  reg,
		Store:     st,
		Upstream:  client,
		Telemetry: telemetry,
		Logger:    logger,
	}

	if err := deps.Validate(); err != nil {
		return APIDependencies{}, err
	}

	return deps, nil
}

// Validate ensures all required dependencies are provided and valid.
func (d APIDependencies) Validate() error {
	if err := validateAddr(d.Addr); err != nil {
		return fmt.Errorf("invalid API address '%s': %w", d.Addr, err)
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
	if d.Logger == nil || reflect.ValueOf(d.Logger).IsNil() {
		return fmt.Errorf("logger cannot be nil")
	}
	return nil
}
