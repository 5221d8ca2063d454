package endpoint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	underscores = regexp.MustCompile(`_+`)
)

// CompiledTool pairs a provider-neutral tool definition with the descriptor it
// was compiled from, so the request synthesizer can later resolve argument
// locations without re-deriving them.
type CompiledTool struct {
	Definition tools.Definition
	Descriptor Descriptor
}

// GenerateToolName derives the default tool name for an operation:
// lower-cased method, underscore, and the path with every non-alphanumeric run
// collapsed to a single underscore and outer underscores trimmed.
// e.g. GET /users/{id}/posts -> get_users_id_posts
func GenerateToolName(method, path string) string {
	cleaned := nonAlnum.ReplaceAllString(path, "_")
	cleaned = underscores.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return strings.ToLower(method)
	}
	return strings.ToLower(method) + "_" + cleaned
}

// Compile turns one descriptor into a provider-neutral tool definition.
//
// It fails with ErrConfiguration when a selected descriptor has no tool
// description, when a parameter lacks a description, or when an explicit tool
// name does not satisfy the identifier grammar. The compiled input contract
// marks a parameter required per the user override when one exists, falling
// back to the declared required flag otherwise.
func Compile(d Descriptor) (tools.Definition, error) {
	if d.Selected && strings.TrimSpace(d.ToolDescription) == "" {
		return tools.Definition{}, fmt.Errorf(
			"%w: selected endpoint %s %s has no tool description",
			errors.ErrConfiguration, d.Method, d.Path,
		)
	}

	name := strings.TrimSpace(d.ToolName)
	if name == "" {
		name = GenerateToolName(d.Method, d.Path)
	}
	if !tools.ValidName(name) {
		return tools.Definition{}, fmt.Errorf(
			"%w: tool name %q for %s %s is not a valid identifier",
			errors.ErrConfiguration, name, d.Method, d.Path,
		)
	}

	schema := tools.NewSchema()
	for _, p := range d.Parameters {
		if strings.TrimSpace(p.Description) == "" {
			return tools.Definition{}, fmt.Errorf(
				"%w: parameter %q of %s %s has no description",
				errors.ErrConfiguration, p.Name, d.Method, d.Path,
			)
		}

		schema.Properties[p.Name] = tools.Property{
			Type:        schemaType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}

		if p.EffectiveRequired() {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	description := d.ToolDescription
	if strings.TrimSpace(description) == "" {
		// Unselected descriptors may still be compiled for preview listings.
		description = fmt.Sprintf("%s %s", strings.ToUpper(d.Method), d.Path)
	}

	return tools.Definition{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, nil
}

// CompileDocument compiles every selected descriptor of a document, in order.
// Default-generated names that collide within the document are disambiguated
// deterministically by suffixing _2, _3, and so on.
func CompileDocument(doc Document) ([]CompiledTool, error) {
	selected := doc.SelectedEndpoints()
	seen := make(map[string]struct{}, len(selected))
	compiled := make([]CompiledTool, 0, len(selected))

	for _, ep := range selected {
		def, err := Compile(ep)
		if err != nil {
			return nil, err
		}

		name := def.Name
		for n := 2; ; n++ {
			if _, dup := seen[name]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", def.Name, n)
		}
		seen[name] = struct{}{}
		def.Name = name

		compiled = append(compiled, CompiledTool{Definition: def, Descriptor: ep})
	}

	return compiled, nil
}

// schemaType maps a declared parameter type onto a JSON schema type,
// defaulting unknown declarations to string.
func schemaType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "string", "integer", "number", "boolean", "array", "object":
		return strings.ToLower(strings.TrimSpace(t))
	default:
		return "string"
	}
}
