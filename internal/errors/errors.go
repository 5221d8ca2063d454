// Package errors defines domain-level errors used throughout the application.
// These errors represent business logic failures and are mapped to appropriate HTTP status codes at the API boundary.
//
// NOTE: Important for developers
// When adding a new error here, you MUST consider how it should be handled when returned from API endpoints.
//
// Unmapped errors will default to HTTP 500 Internal Server Error.
//
// Don't forget to:
// 1. Add your error to mapError (internal/daemon/api_server.go)
// 2. Add a test case to TestMapError (internal/daemon/api_server_test.go)
// 3. Consider if existing handler tests need updates
package errors

import (
	"errors"
)

var (
	// ErrBadRequest indicates that the client provided invalid input or made a malformed request.
	// This typically results from validation failures or incorrect request parameters.
	// Recommended to map to HTTP 400 Bad Request.
	ErrBadRequest = errors.New("bad request")

	// ErrConfiguration indicates a descriptor/tool mismatch or an otherwise unusable endpoint
	// configuration (e.g. a selected endpoint without a tool description, or a path template
	// with placeholders no declared parameter can fill).
	// Fatal and not retryable; surfaced to the operator rather than the model.
	// Recommended to map to HTTP 422 Unprocessable Entity.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDocumentNotFound indicates that the requested endpoint document does not exist.
	// Recommended to map to HTTP 404 Not Found.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrServerNotFound indicates that the requested deployed server does not exist in the registry.
	// Recommended to map to HTTP 404 Not Found.
	ErrServerNotFound = errors.New("server not found")

	// ErrServerInactive indicates that a deployed server is registered but currently stopped.
	// Its tools remain listed, but composition and dispatch against them are rejected.
	// Recommended to map to HTTP 409 Conflict.
	ErrServerInactive = errors.New("server inactive")

	// ErrAlreadyDeployed indicates an attempt to deploy a server with an identifier
	// that is already registered.
	// Recommended to map to HTTP 409 Conflict.
	ErrAlreadyDeployed = errors.New("server already deployed")

	// ErrToolNotFound indicates that the named tool is absent from the composed toolset.
	// Recommended to map to HTTP 404 Not Found.
	ErrToolNotFound = errors.New("tool not found")

	// ErrMissingParameter indicates the model supplied an invocation missing a required argument.
	// Contained to the invocation: surfaced as a tool-result error so the model can self-correct,
	// never as a crash. No upstream HTTP call is attempted.
	// Recommended to map to HTTP 400 Bad Request when it reaches the API boundary.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrTypeMismatch indicates the model supplied an argument whose type violates the
	// tool's input contract. Handled like ErrMissingParameter: a tool-result error.
	// Recommended to map to HTTP 400 Bad Request when it reaches the API boundary.
	ErrTypeMismatch = errors.New("argument type mismatch")

	// ErrUpstreamUnavailable indicates the backend API could not be reached (network failure
	// or timeout). Surfaced as a tool-result error; never crashes the agent loop.
	// Recommended to map to HTTP 502 Bad Gateway when it reaches the API boundary.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrProvider indicates a transport or authentication failure talking to the LLM provider.
	// Aborts the current turn without mutating conversation state; not retried here.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrProvider = errors.New("provider request failed")

	// ErrProviderProtocol indicates the LLM provider returned a response that could not be
	// decoded or failed schema validation. Aborts the current turn without mutating
	// conversation state.
	// Recommended to map to HTTP 502 Bad Gateway.
	ErrProviderProtocol = errors.New("malformed provider response")

	// ErrStore indicates a persistence failure reading or writing records.
	// Recommended to map to HTTP 500 Internal Server Error.
	ErrStore = errors.New("store operation failed")

	// ErrDispatchNotTracked indicates that dispatch telemetry is not recorded for the
	// specified server.
	// Recommended to map to HTTP 404 Not Found.
	ErrDispatchNotTracked = errors.New("server dispatch is not being tracked")
)
