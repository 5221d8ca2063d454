// Package registry holds the in-memory registry of deployed servers and the
// session-scoped toolset composer built on top of it.
//
// The registry is the only mutable state shared across conversations. It is
// safe for concurrent use: reads take a shared lock, mutations take a short
// exclusive lock, and accessors hand out copies so callers never alias the
// registry's mutable fields.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// Server is one registered binding of a compiled toolset to a live base URL.
// The registry owns Server values exclusively; other components reference
// servers by id and receive copies from accessors.
type Server struct {
	ID           string
	Name         string
	DocumentID   string
	BaseURL      string
	Active       bool
	RegisteredAt time.Time
	Tools        []endpoint.CompiledTool
}

// Definitions returns the server's tool definitions in compiled order.
func (s Server) Definitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(s.Tools))
	for _, t := range s.Tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

// clone deep-copies the mutable parts of a server so registry state cannot be
// modified through returned values.
func (s Server) clone() Server {
	out := s
	out.Tools = make([]endpoint.CompiledTool, len(s.Tools))
	copy(out.Tools, s.Tools)
	return out
}

// Registry is an injectable, concurrency-safe map from server id to deployed
// server state. Construct isolated instances per test with NewRegistry; there
// is no process-wide singleton.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]Server
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]Server),
	}
}

// Register adds a deployed server.
// Registering an id that already exists fails with ErrAlreadyDeployed.
func (r *Registry) Register(s Server) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: server id cannot be empty", errors.ErrBadRequest)
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("%w: server %q has no base URL", errors.ErrBadRequest, s.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[s.ID]; exists {
		return fmt.Errorf("%w: %s", errors.ErrAlreadyDeployed, s.ID)
	}

	if s.RegisteredAt.IsZero() {
		s.RegisteredAt = time.Now().UTC()
	}
	r.servers[s.ID] = s.clone()

	return nil
}

// Deregister removes a server entirely.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[id]; !exists {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}
	delete(r.servers, id)

	return nil
}

// Get returns a copy of the identified server.
func (r *Registry) Get(id string) (Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.servers[id]
	if !exists {
		return Server{}, fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}

	return s.clone(), nil
}

// List returns copies of all registered servers ordered by registration time,
// then id for stability.
func (r *Registry) List() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// SetActive starts or stops a server without deregistering it.
// Inactive servers keep their tools listed but are rejected at dispatch time.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.servers[id]
	if !exists {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}
	s.Active = active
	r.servers[id] = s

	return nil
}

// UpdateBaseURL changes where a server's tools dispatch to. Tools are not
// recompiled; in-flight requests complete against whichever URL they captured
// at dispatch time.
func (r *Registry) UpdateBaseURL(id, baseURL string) error {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return fmt.Errorf("%w: base URL cannot be empty", errors.ErrBadRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.servers[id]
	if !exists {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}
	s.BaseURL = baseURL
	r.servers[id] = s

	return nil
}
