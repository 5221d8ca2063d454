package registry

import (
	"fmt"
	"maps"
	"slices"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// shortIDLen is how much of the owning server's id is appended to rename a
// colliding tool.
const shortIDLen = 8

// Binding associates one composed tool name with the server that owns it and
// the material needed to dispatch it.
type Binding struct {
	// ServerID identifies the owning server; dispatch re-resolves it against
	// the live registry so base URL changes and stop/start take effect.
	ServerID string

	// Definition carries the (possibly renamed) tool definition shown to the
	// provider.
	Definition tools.Definition

	// Descriptor is the REST operation the tool compiles from.
	Descriptor endpoint.Descriptor
}

// Toolset is the ephemeral, session-scoped mapping from composed tool name to
// binding. It is rebuilt at session start and never persisted. A Toolset is
// immutable after composition and therefore safe to share within a session.
type Toolset struct {
	order    []string
	bindings map[string]Binding
}

// Compose merges the tool sets of the identified servers, in order, into one
// session namespace.
//
// When a later server's tool name is already taken by an earlier server, the
// later tool is renamed by appending _<serverID[:8]> so both survive under
// distinct names; collisions are never dropped, so the composed size always
// equals the sum of the per-server tool counts. Unknown ids fail with
// ErrServerNotFound and inactive servers with ErrServerInactive; activity is
// re-validated at dispatch time as well, so a server deactivated mid-session
// fails dispatch rather than composition.
func (r *Registry) Compose(serverIDs ...string) (*Toolset, error) {
	ts := &Toolset{
		bindings: make(map[string]Binding),
	}

	for _, id := range serverIDs {
		srv, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		if !srv.Active {
			return nil, fmt.Errorf("%w: %s", errors.ErrServerInactive, id)
		}

		for _, ct := range srv.Tools {
			def := ct.Definition
			if _, taken := ts.bindings[def.Name]; taken {
				def.Name = renameCollision(ts.bindings, def.Name, srv.ID)
			}

			ts.order = append(ts.order, def.Name)
			ts.bindings[def.Name] = Binding{
				ServerID:   srv.ID,
				Definition: def,
				Descriptor: ct.Descriptor,
			}
		}
	}

	return ts, nil
}

// renameCollision derives a free name for a colliding tool by appending the
// owning server's short id, then numeric suffixes if even that is taken
// (e.g. the same server composed twice).
func renameCollision(taken map[string]Binding, name, serverID string) string {
	short := serverID
	if len(short) > shortIDLen {
		short = short[:shortIDLen]
	}

	candidate := fmt.Sprintf("%s_%s", name, short)
	for n := 2; ; n++ {
		if _, dup := taken[candidate]; !dup {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%s_%d", name, short, n)
	}
}

// Get returns the binding for a composed tool name.
func (t *Toolset) Get(name string) (Binding, bool) {
	b, ok := t.bindings[name]
	return b, ok
}

// Len returns the number of composed tools.
func (t *Toolset) Len() int {
	return len(t.bindings)
}

// Definitions returns the composed tool definitions in composition order,
// ready to hand to a provider adapter.
func (t *Toolset) Definitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(t.order))
	for _, name := range t.order {
		defs = append(defs, t.bindings[name].Definition)
	}
	return defs
}

// Names returns the composed tool names in composition order.
func (t *Toolset) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Extend returns a new toolset carrying t's bindings plus caller-supplied
// definitions. Extending never mutates t; a definition whose name is already
// taken is skipped so server-backed tools always win.
func (t *Toolset) Extend(defs []tools.Definition) *Toolset {
	out := &Toolset{
		order:    slices.Clone(t.order),
		bindings: maps.Clone(t.bindings),
	}
	for _, def := range defs {
		if _, taken := out.bindings[def.Name]; taken {
			continue
		}
		out.order = append(out.order, def.Name)
		out.bindings[def.Name] = Binding{Definition: def}
	}
	return out
}

// ComposeDefinitions builds a toolset directly from caller-supplied tool
// definitions that bypass the registry. Used when a session runs with custom
// tools; such bindings carry no server and cannot be dispatched internally.
func ComposeDefinitions(defs []tools.Definition) *Toolset {
	ts := &Toolset{
		bindings: make(map[string]Binding, len(defs)),
	}
	for _, def := range defs {
		if _, taken := ts.bindings[def.Name]; taken {
			continue
		}
		ts.order = append(ts.order, def.Name)
		ts.bindings[def.Name] = Binding{Definition: def}
	}
	return ts
}
