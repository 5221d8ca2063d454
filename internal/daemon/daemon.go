// Package daemon assembles the long-running service: registry, store,
// upstream client, dispatch telemetry and the HTTP API server. It reloads
// persisted deployments at startup so a restart resumes serving the same
// servers.
package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/store"
	"github.com/apiforge-ai/apiforge/internal/upstream"
)

// Daemon owns the long-running components and their lifecycle.
// NewDaemon should be used to create instances of Daemon.
type Daemon struct {
	logger    hclog.Logger
	registry  *registry.Registry
	store     store.Store
	upstream  *upstream.Client
	telemetry *DispatchTracker
	apiServer *APIServer
}

// NewDaemon creates a daemon from its dependencies and options.
func NewDaemon(deps Dependencies, opt ...Option) (*Daemon, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies for daemon: %w", err)
	}

	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon options: %w", err)
	}

	reg := registry.NewRegistry()
	telemetry := NewDispatchTracker(nil)

	clientOpts := []upstream.ClientOption{upstream.WithDispatchMonitor(telemetry)}
	if opts.UpstreamCallTimeout > 0 {
		clientOpts = append(clientOpts, upstream.WithTimeout(opts.UpstreamCallTimeout))
	}
	client := upstream.NewClient(deps.Logger, clientOpts...)

	apiDeps, err := NewAPIDependencies(deps.Logger, reg, deps.Store, client, telemetry, deps.APIAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create API server dependencies: %w", err)
	}
	apiServer, err := NewAPIServer(apiDeps, opts.APIOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon API server: %w", err)
	}

	return &Daemon{
		logger:    deps.Logger.Named("daemon"),
		registry:  reg,
		store:     deps.Store,
		upstream:  client,
		telemetry: telemetry,
		apiServer: apiServer,
	}, nil
}

// Registry exposes the daemon's live registry, primarily for tests.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// StartAndManage reloads persisted deployments into the registry and runs the
// API server until the context is canceled.
func (d *Daemon) StartAndManage(ctx context.Context) error {
	if err := d.reload(); err != nil {
		return err
	}

	return d.apiServer.Start(ctx)
}

// reload rebuilds the registry from persisted server records, recompiling
// each record's document. A record whose document is missing or no longer
// compiles is skipped with a warning rather than failing startup: the
// remaining servers still deserve to come up.
func (d *Daemon) reload() error {
	records, err := d.store.ListServers()
	if err != nil {
		return fmt.Errorf("failed to list persisted servers: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if err := d.restore(rec); err != nil {
			d.logger.Warn("Skipping persisted server", "id", rec.ID, "error", err)
			continue
		}
		restored++
	}

	d.logger.Info("Registry reloaded", "persisted", len(records), "restored", restored)

	return nil
}

func (d *Daemon) restore(rec store.ServerRecord) error {
	doc, err := d.store.GetDocument(rec.DocumentID)
	if err != nil {
		if stdErrors.Is(err, errors.ErrDocumentNotFound) {
			return fmt.Errorf("document %s no longer exists", rec.DocumentID)
		}
		return err
	}

	compiled, err := endpoint.CompileDocument(doc)
	if err != nil {
		return fmt.Errorf("document %s no longer compiles: %w", rec.DocumentID, err)
	}

	if err := d.registry.Register(registry.Server{
		ID:           rec.ID,
		Name:         rec.Name,
		DocumentID:   rec.DocumentID,
		BaseURL:      rec.BaseURL,
		Active:       rec.Active,
		RegisteredAt: rec.RegisteredAt,
		Tools:        compiled,
	}); err != nil {
		return err
	}
	d.telemetry.Add(rec.ID)

	return nil
}
