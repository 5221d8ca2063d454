// Package tools defines the provider-neutral tool definition shared between the
// tool compiler, the server registry, the provider adapters and the request
// synthesizer. A Definition marshals to the JSON-schema-like shape that both
// the Anthropic and OpenAI protocols accept.
package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/apiforge-ai/apiforge/internal/errors"
)

// nameGrammar is the identifier grammar every tool name must satisfy.
var nameGrammar = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Property describes a single named input of a tool.
type Property struct {
	// Type is the JSON schema type of the property (string, integer, number, boolean, array, object).
	Type string `json:"type"`

	// Description is surfaced to the model as a hint about the property.
	Description string `json:"description,omitempty"`

	// Enum restricts the property to a fixed set of values when present.
	Enum []string `json:"enum,omitempty"`

	// Items describes array element types when Type is "array".
	Items *Property `json:"items,omitempty"`
}

// Schema is the input contract for a tool: a JSON schema object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Definition is one named, schema-described callable exposed to an LLM.
// Name must be unique within a composed session; uniqueness across servers
// is enforced by the toolset composer, not here.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// NewSchema returns an empty object schema.
// Properties and Required are allocated so the marshaled form is always
// {"type":"object","properties":{},"required":[]} rather than nulls.
func NewSchema() Schema {
	return Schema{
		Type:       "object",
		Properties: map[string]Property{},
		Required:   []string{},
	}
}

// MarshalJSON ensures Properties and Required never serialize as null.
func (s Schema) MarshalJSON() ([]byte, error) {
	type alias Schema
	out := alias(s)
	if out.Properties == nil {
		out.Properties = map[string]Property{}
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	return json.Marshal(out)
}

// ValidName reports whether name satisfies the tool identifier grammar.
func ValidName(name string) bool {
	return nameGrammar.MatchString(name)
}

// Validate checks structural soundness of the definition itself.
func (d Definition) Validate() error {
	if !ValidName(d.Name) {
		return fmt.Errorf("%w: tool name %q is not a valid identifier", errors.ErrConfiguration, d.Name)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: tool %q has no description", errors.ErrConfiguration, d.Name)
	}
	for _, req := range d.InputSchema.Required {
		if _, ok := d.InputSchema.Properties[req]; !ok {
			return fmt.Errorf("%w: tool %q requires undeclared property %q", errors.ErrConfiguration, d.Name, req)
		}
	}
	return nil
}

// CheckArguments validates a model-supplied argument object against the tool's
// input contract before any request synthesis happens.
// A missing required argument yields ErrMissingParameter naming the first
// missing parameter; a type violation yields ErrTypeMismatch.
// Arguments the schema does not declare are ignored, matching the permissive
// behavior both provider protocols exhibit.
func (d Definition) CheckArguments(args map[string]any) error {
	// Required presence is checked explicitly so the reported parameter name is
	// deterministic regardless of schema library iteration order.
	missing := make([]string, 0, len(d.InputSchema.Required))
	for _, name := range d.InputSchema.Required {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", errors.ErrMissingParameter, missing[0])
	}

	schemaJSON, err := json.Marshal(d.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: marshaling input schema for %q: %w", errors.ErrConfiguration, d.Name, err)
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("%w: validating arguments for %q: %w", errors.ErrConfiguration, d.Name, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		sort.Strings(details)
		return fmt.Errorf("%w: %s", errors.ErrTypeMismatch, strings.Join(details, "; "))
	}

	return nil
}
