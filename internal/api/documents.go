package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
)

// DocumentRequest carries one normalized endpoint list for import.
type DocumentRequest struct {
	Body endpoint.Document
}

// DocumentResponse wraps a single stored document.
type DocumentResponse struct {
	Body endpoint.Document
}

// DocumentsResponse wraps the stored document list.
type DocumentsResponse struct {
	Body []endpoint.Document
}

// DocumentLookupRequest identifies a document by id.
type DocumentLookupRequest struct {
	ID string `doc:"ID of the document" example:"petstore" path:"id"`
}

// EndpointOverride is one user override applied to an endpoint, matched by
// method and path. Only non-nil fields are applied.
type EndpointOverride struct {
	Method string `json:"http_method" doc:"HTTP method of the endpoint to modify" example:"GET"`
	Path   string `json:"path"        doc:"Path of the endpoint to modify"        example:"/users/{user_id}"`

	Selected        *bool   `json:"selected,omitempty"         doc:"Select or deselect the endpoint for compilation"`
	ToolName        *string `json:"tool_name,omitempty"        doc:"Override the generated tool name"`
	ToolDescription *string `json:"tool_description,omitempty" doc:"Description surfaced to the model"`

	// Parameters overrides per-parameter settings, matched by name.
	Parameters []ParameterOverride `json:"parameters,omitempty"`
}

// ParameterOverride adjusts one declared parameter, matched by name.
type ParameterOverride struct {
	Name        string  `json:"name" doc:"Name of the parameter to modify"`
	Required    *bool   `json:"required,omitempty"    doc:"Whether the compiled tool marks this parameter required"`
	Description *string `json:"description,omitempty" doc:"Parameter description surfaced to the model"`
}

// DocumentOverridesRequest applies a batch of endpoint overrides to a document.
type DocumentOverridesRequest struct {
	ID   string `doc:"ID of the document" path:"id"`
	Body struct {
		Endpoints []EndpointOverride `json:"endpoints"`
	}
}

// RegisterDocumentRoutes sets up document import and override endpoints.
func RegisterDocumentRoutes(routerAPI huma.API, deps Dependencies, apiPathPrefix string) {
	documentsAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Documents"}

	huma.Register(
		documentsAPI,
		huma.Operation{
			OperationID: "importDocument",
			Method:      http.MethodPut,
			Summary:     "Import a normalized endpoint document",
			Tags:        tags,
		},
		func(ctx context.Context, input *DocumentRequest) (*DocumentResponse, error) {
			return handleImportDocument(deps, input.Body)
		},
	)

	huma.Register(
		documentsAPI,
		huma.Operation{
			OperationID: "listDocuments",
			Method:      http.MethodGet,
			Summary:     "List all imported documents",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*DocumentsResponse, error) {
			docs, err := deps.Store.ListDocuments()
			if err != nil {
				return nil, err
			}
			return &DocumentsResponse{Body: docs}, nil
		},
	)

	huma.Register(
		documentsAPI,
		huma.Operation{
			OperationID: "getDocument",
			Method:      http.MethodGet,
			Path:        "/{id}",
			Summary:     "Get a document",
			Tags:        tags,
		},
		func(ctx context.Context, input *DocumentLookupRequest) (*DocumentResponse, error) {
			doc, err := deps.Store.GetDocument(input.ID)
			if err != nil {
				return nil, err
			}
			return &DocumentResponse{Body: doc}, nil
		},
	)

	huma.Register(
		documentsAPI,
		huma.Operation{
			OperationID: "overrideDocumentEndpoints",
			Method:      http.MethodPatch,
			Path:        "/{id}/endpoints",
			Summary:     "Apply user overrides to a document's endpoints",
			Tags:        tags,
		},
		func(ctx context.Context, input *DocumentOverridesRequest) (*DocumentResponse, error) {
			return handleOverrideEndpoints(deps, input.ID, input.Body.Endpoints)
		},
	)

	huma.Register(
		documentsAPI,
		huma.Operation{
			OperationID: "deleteDocument",
			Method:      http.MethodDelete,
			Path:        "/{id}",
			Summary:     "Delete a document",
			Tags:        tags,
		},
		func(ctx context.Context, input *DocumentLookupRequest) (*struct{}, error) {
			if err := deps.Store.DeleteDocument(input.ID); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	)
}

// handleImportDocument validates and stores one document. Import replaces any
// previous version under the same id, including its override state.
func handleImportDocument(deps Dependencies, doc endpoint.Document) (*DocumentResponse, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if err := deps.Store.SaveDocument(doc); err != nil {
		return nil, err
	}

	deps.Logger.Info("Document imported", "id", doc.ID, "endpoints", len(doc.Endpoints))

	return &DocumentResponse{Body: doc}, nil
}

// handleOverrideEndpoints applies a batch of overrides and persists the result.
// The whole batch is validated before anything is written; an override naming
// an unknown endpoint or parameter rejects the batch.
func handleOverrideEndpoints(deps Dependencies, id string, overrides []EndpointOverride) (*DocumentResponse, error) {
	doc, err := deps.Store.GetDocument(id)
	if err != nil {
		return nil, err
	}

	for _, ov := range overrides {
		idx := findEndpoint(doc.Endpoints, ov.Method, ov.Path)
		if idx < 0 {
			return nil, fmt.Errorf("%w: no endpoint %s %s in document %s", errors.ErrBadRequest, ov.Method, ov.Path, id)
		}

		ep := &doc.Endpoints[idx]
		if ov.Selected != nil {
			ep.Selected = *ov.Selected
		}
		if ov.ToolName != nil {
			ep.ToolName = *ov.ToolName
		}
		if ov.ToolDescription != nil {
			ep.ToolDescription = *ov.ToolDescription
		}

		for _, pov := range ov.Parameters {
			param := findParameter(ep.Parameters, pov.Name)
			if param == nil {
				return nil, fmt.Errorf(
					"%w: no parameter %q on %s %s",
					errors.ErrBadRequest, pov.Name, ov.Method, ov.Path,
				)
			}
			if pov.Required != nil {
				required := *pov.Required
				param.UserRequired = &required
			}
			if pov.Description != nil {
				param.Description = *pov.Description
			}
		}
	}

	if err := deps.Store.SaveDocument(doc); err != nil {
		return nil, err
	}

	deps.Logger.Info("Document overrides applied", "id", id, "endpoints", len(overrides))

	return &DocumentResponse{Body: doc}, nil
}

func findEndpoint(endpoints []endpoint.Descriptor, method, path string) int {
	for i, ep := range endpoints {
		if ep.Method == method && ep.Path == path {
			return i
		}
	}
	return -1
}

func findParameter(params []endpoint.Parameter, name string) *endpoint.Parameter {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}
