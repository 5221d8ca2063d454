package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
)

// MCP protocol constants for the JSON-RPC bridge.
const (
	mcpProtocolVersion = "2024-11-05"

	// rpcServerNotDeployed is the implementation-defined code for requests
	// against a server that is not deployed or not active.
	rpcServerNotDeployed = -32000
	rpcMethodNotFound    = -32601
	rpcInvalidParams     = -32602
	rpcInternalError     = -32603
)

// RPCRequest is one JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is one JSON-RPC 2.0 response. Transport-level success is always
// HTTP 200; failures live in the Error field.
type RPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// MCPRequest is the HTTP carrier for one JSON-RPC call against a deployed
// server.
type MCPRequest struct {
	Server string `doc:"ID of the deployed server" path:"server"`
	Body   RPCRequest
}

// MCPResponse wraps the JSON-RPC response.
type MCPResponse struct {
	Body RPCResponse
}

// mcpToolCallParams are the parameters of a tools/call request.
type mcpToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RegisterMCPRoutes sets up the MCP JSON-RPC bridge. Each deployed server is
// exposed as one MCP server whose tools are its compiled definitions.
func RegisterMCPRoutes(routerAPI huma.API, deps Dependencies, apiPathPrefix string) {
	mcpAPI := huma.NewGroup(routerAPI, apiPathPrefix)

	huma.Register(
		mcpAPI,
		huma.Operation{
			OperationID: "mcpServe",
			Method:      http.MethodPost,
			Path:        "/{server}",
			Summary:     "JSON-RPC endpoint exposing a deployed server over MCP",
			Tags:        []string{"MCP"},
		},
		func(ctx context.Context, input *MCPRequest) (*MCPResponse, error) {
			return &MCPResponse{Body: handleRPC(ctx, deps, input.Server, input.Body)}, nil
		},
	)
}

// handleRPC dispatches one JSON-RPC request. Protocol failures are encoded as
// JSON-RPC errors, never HTTP errors.
func handleRPC(ctx context.Context, deps Dependencies, serverID string, req RPCRequest) RPCResponse {
	resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}

	srv, err := deps.Registry.Get(serverID)
	if err != nil || !srv.Active {
		resp.Error = &RPCError{
			Code:    rpcServerNotDeployed,
			Message: fmt.Sprintf("server %s is not deployed", serverID),
		}
		return resp
	}

	switch req.Method {
	case "initialize":
		resp.Result = handleMCPInitialize(srv)
	case "ping":
		resp.Result = struct{}{}
	case "tools/list":
		resp.Result = handleMCPToolsList(srv)
	case "tools/call":
		result, rpcErr := handleMCPToolsCall(ctx, deps, srv, req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
			return resp
		}
		resp.Result = result
	default:
		resp.Error = &RPCError{
			Code:    rpcMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}

	return resp
}

func handleMCPInitialize(srv registry.Server) map[string]any {
	return map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    srv.Name,
			"version": "1.0.0",
		},
	}
}

// handleMCPToolsList renders the server's compiled definitions as MCP tools.
func handleMCPToolsList(srv registry.Server) map[string]any {
	defs := srv.Definitions()
	mcpTools := make([]mcp.Tool, 0, len(defs))
	for _, def := range defs {
		properties := make(map[string]any, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			properties[name] = prop
		}
		mcpTools = append(mcpTools, mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: mcp.ToolInputSchema{
				Type:       def.InputSchema.Type,
				Properties: properties,
				Required:   def.InputSchema.Required,
			},
		})
	}

	return map[string]any{"tools": mcpTools}
}

// handleMCPToolsCall executes one tool and renders the outcome as MCP content
// blocks. Tool-level failures set isError on the result; only malformed
// params or internal faults become JSON-RPC errors.
func handleMCPToolsCall(
	ctx context.Context,
	deps Dependencies,
	srv registry.Server,
	params json.RawMessage,
) (*mcp.CallToolResult, *RPCError) {
	var call mcpToolCallParams
	if err := json.Unmarshal(params, &call); err != nil || call.Name == "" {
		return nil, &RPCError{Code: rpcInvalidParams, Message: "invalid tools/call params"}
	}

	toolset, err := deps.Registry.Compose(srv.ID)
	if err != nil {
		return nil, &RPCError{Code: rpcInternalError, Message: err.Error()}
	}

	outcome, err := deps.Upstream.CallTool(ctx, deps.Registry, toolset, call.Name, call.Arguments)
	switch {
	case stdErrors.Is(err, errors.ErrToolNotFound),
		stdErrors.Is(err, errors.ErrMissingParameter),
		stdErrors.Is(err, errors.ErrTypeMismatch):
		return nil, &RPCError{Code: rpcInvalidParams, Message: err.Error()}
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	case !outcome.OK():
		return mcp.NewToolResultError(fmt.Sprintf("HTTP %d: %s", outcome.Status, outcome.Body)), nil
	default:
		return mcp.NewToolResultText(string(outcome.Body)), nil
	}
}
