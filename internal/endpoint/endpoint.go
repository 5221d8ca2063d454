// Package endpoint models normalized REST operations as produced by the
// external spec parser, plus the user override layer (selection, naming,
// descriptions, required-flag overrides) applied on top of them.
package endpoint

import (
	"fmt"
	"strings"

	"github.com/apiforge-ai/apiforge/internal/errors"
)

const (
	// LocationPath parameters are substituted into the path template.
	LocationPath Location = "path"

	// LocationQuery parameters become query-string entries.
	LocationQuery Location = "query"

	// LocationHeader parameters become request headers.
	LocationHeader Location = "header"

	// LocationBody parameters are assembled into a single JSON body object.
	LocationBody Location = "body"
)

// Location identifies where a parameter value is placed in the upstream request.
type Location string

// Parameter is one declared input of a REST operation.
type Parameter struct {
	Name        string   `json:"name"                  toml:"name"                 yaml:"name"`
	Location    Location `json:"location"              toml:"location"             yaml:"location"`
	Type        string   `json:"type"                  toml:"type"                 yaml:"type"`
	Description string   `json:"description"           toml:"description"          yaml:"description"`
	Enum        []string `json:"enum,omitempty"        toml:"enum,omitempty"       yaml:"enum,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"  toml:"deprecated,omitempty" yaml:"deprecated,omitempty"`

	// Required is the flag declared by the source document.
	Required bool `json:"required" toml:"required" yaml:"required"`

	// UserRequired is the override applied by the user. When set it wins
	// over the declared Required flag; when absent the declared flag
	// stands.
	UserRequired *bool `json:"user_required,omitempty" toml:"user_required,omitempty" yaml:"user_required,omitempty"`
}

// EffectiveRequired reports whether the compiled tool marks this parameter as
// required: the user override when one was applied, the declared flag
// otherwise.
func (p Parameter) EffectiveRequired() bool {
	if p.UserRequired != nil {
		return *p.UserRequired
	}
	return p.Required
}

// Descriptor is one normalized REST operation plus its override state.
type Descriptor struct {
	Method      string      `json:"http_method"            toml:"http_method"            yaml:"http_method"`
	Path        string      `json:"path"                   toml:"path"                   yaml:"path"`
	OperationID string      `json:"operation_id,omitempty" toml:"operation_id,omitempty" yaml:"operation_id,omitempty"`
	Parameters  []Parameter `json:"parameters"             toml:"parameters"             yaml:"parameters"`

	// Selected marks the operation for compilation into a tool.
	Selected bool `json:"selected" toml:"selected" yaml:"selected"`

	// ToolName overrides the generated default name when set.
	ToolName string `json:"tool_name,omitempty" toml:"tool_name,omitempty" yaml:"tool_name,omitempty"`

	// ToolDescription is surfaced to the model; required before a selected
	// descriptor can be compiled.
	ToolDescription string `json:"tool_description,omitempty" toml:"tool_description,omitempty" yaml:"tool_description,omitempty"`
}

// Document is one imported endpoint list with its override state, as produced
// by the external parser and persisted by the store.
type Document struct {
	ID        string       `json:"id"        toml:"id"        yaml:"id"`
	Name      string       `json:"name"      toml:"name"      yaml:"name"`
	BaseURL   string       `json:"base_url"  toml:"base_url"  yaml:"base_url"`
	Endpoints []Descriptor `json:"endpoints" toml:"endpoints" yaml:"endpoints"`
}

// Validate checks the structural soundness of an imported document.
func (d Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: document id cannot be empty", errors.ErrBadRequest)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: document name cannot be empty", errors.ErrBadRequest)
	}
	for i, ep := range d.Endpoints {
		if strings.TrimSpace(ep.Method) == "" {
			return fmt.Errorf("%w: endpoint %d has no HTTP method", errors.ErrBadRequest, i)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("%w: endpoint %d path %q must start with '/'", errors.ErrBadRequest, i, ep.Path)
		}
	}
	return nil
}

// SelectedEndpoints returns the selected descriptors in document order.
func (d Document) SelectedEndpoints() []Descriptor {
	out := make([]Descriptor, 0, len(d.Endpoints))
	for _, ep := range d.Endpoints {
		if ep.Selected {
			out = append(out, ep)
		}
	}
	return out
}

// Parameter returns the named parameter and whether it exists.
func (d Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
