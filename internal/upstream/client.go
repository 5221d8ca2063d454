// Package upstream synthesizes and executes HTTP requests against the live
// backend APIs that deployed servers bind to. It resolves model-supplied
// argument objects into path substitutions, query parameters, headers and a
// JSON body according to each parameter's declared location, then issues the
// call with a bounded timeout. It never reinterprets API semantics: a
// successful response body is returned unchanged.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/contracts"
	"github.com/apiforge-ai/apiforge/internal/domain"
	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// DefaultCallTimeout bounds one upstream call. Generous because generated
// servers regularly front long-running AI and batch endpoints.
const DefaultCallTimeout = 300 * time.Second

// placeholder matches unresolved {name} segments left in a path template.
var placeholder = regexp.MustCompile(`\{[^{}]*\}`)

// Outcome is the result of an executed upstream call. A non-2xx status is an
// Outcome, not an error: it is surfaced to the agent loop as data so the
// model can react to it.
type Outcome struct {
	// Status is the upstream HTTP status code.
	Status int

	// Body is the response body; JSON is passed through verbatim, anything
	// else is wrapped as {"result": "<text>"}.
	Body json.RawMessage
}

// OK reports whether the upstream answered with a 2xx.
func (o Outcome) OK() bool {
	return o.Status >= 200 && o.Status < 300
}

// Client executes synthesized requests.
// NewClient should be used to create instances of Client.
type Client struct {
	httpClient *http.Client
	logger     hclog.Logger
	monitor    contracts.DispatchMonitor
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDispatchMonitor wires dispatch telemetry recording.
func WithDispatchMonitor(m contracts.DispatchMonitor) ClientOption {
	return func(c *Client) {
		c.monitor = m
	}
}

// NewClient creates an upstream client.
func NewClient(logger hclog.Logger, opt ...ClientOption) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultCallTimeout},
		logger:     logger.Named("upstream"),
	}
	for _, fn := range opt {
		if fn != nil {
			fn(c)
		}
	}
	return c
}

// CallTool resolves a composed tool name to its owning server and executes
// the bound REST operation with the supplied arguments.
//
// The server's activity and base URL are re-read from the live registry at
// call time, not cached from composition: a server deactivated mid-session
// fails here with ErrServerInactive, and a base URL update redirects all
// subsequent calls while in-flight ones finish against the URL they captured.
func (c *Client) CallTool(
	ctx context.Context,
	reg *registry.Registry,
	toolset *registry.Toolset,
	name string,
	args map[string]any,
) (Outcome, error) {
	binding, ok := toolset.Get(name)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", errors.ErrToolNotFound, name)
	}
	if binding.ServerID == "" {
		// Custom-tool bindings have no backing server to dispatch to.
		return Outcome{}, fmt.Errorf("%w: %s has no deployed server", errors.ErrToolNotFound, name)
	}

	srv, err := reg.Get(binding.ServerID)
	if err != nil {
		return Outcome{}, err
	}
	if !srv.Active {
		return Outcome{}, fmt.Errorf("%w: %s", errors.ErrServerInactive, srv.ID)
	}

	started := time.Now()
	outcome, err := c.Execute(ctx, srv.BaseURL, binding.Definition, binding.Descriptor, args)
	c.record(srv.ID, started, outcome, err)

	return outcome, err
}

// Execute validates arguments against the tool's input contract and issues
// the synthesized HTTP call to baseURL.
func (c *Client) Execute(
	ctx context.Context,
	baseURL string,
	def tools.Definition,
	desc endpoint.Descriptor,
	args map[string]any,
) (Outcome, error) {
	// Required/type validation happens before any I/O.
	if err := def.CheckArguments(args); err != nil {
		return Outcome{}, err
	}

	pathValues := map[string]string{}
	query := url.Values{}
	headers := map[string]string{}
	body := map[string]any{}

	for _, p := range desc.Parameters {
		value, present := args[p.Name]
		if !present || value == nil {
			// Absent optional values are omitted entirely, never sent empty.
			continue
		}

		switch p.Location {
		case endpoint.LocationPath:
			pathValues[p.Name] = stringify(value)
		case endpoint.LocationQuery:
			items, err := queryItems(value)
			if err != nil {
				return Outcome{}, fmt.Errorf(
					"%w: encoding query parameter %q: %w",
					errors.ErrConfiguration, p.Name, err,
				)
			}
			for _, item := range items {
				query.Add(p.Name, item)
			}
		case endpoint.LocationHeader:
			headers[p.Name] = stringify(value)
		case endpoint.LocationBody:
			body[p.Name] = value
		default:
			return Outcome{}, fmt.Errorf(
				"%w: parameter %q has unknown location %q",
				errors.ErrConfiguration, p.Name, p.Location,
			)
		}
	}

	path := desc.Path
	for name, value := range pathValues {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	if leftover := placeholder.FindString(path); leftover != "" {
		return Outcome{}, fmt.Errorf(
			"%w: unresolved path placeholder %s in %s %s",
			errors.ErrConfiguration, leftover, desc.Method, desc.Path,
		)
	}

	fullURL := strings.TrimSuffix(baseURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var reqBody io.Reader
	if len(body) > 0 {
		data, err := json.Marshal(body)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: encoding request body: %w", errors.ErrConfiguration, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(desc.Method), fullURL, reqBody)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: building request for %s: %w", errors.ErrConfiguration, fullURL, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("Dispatching upstream call", "method", req.Method, "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s %s: %w", errors.ErrUpstreamUnavailable, req.Method, fullURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: reading response from %s: %w", errors.ErrUpstreamUnavailable, fullURL, err)
	}

	return Outcome{Status: resp.StatusCode, Body: normalizeBody(raw)}, nil
}

// record feeds dispatch telemetry when a monitor is wired.
func (c *Client) record(serverID string, started time.Time, outcome Outcome, err error) {
	if c.monitor == nil {
		return
	}

	latency := time.Since(started)
	switch {
	case err != nil:
		c.monitor.Record(serverID, domain.DispatchStatusUnreachable, nil)
	case outcome.OK():
		c.monitor.Record(serverID, domain.DispatchStatusOK, &latency)
	default:
		c.monitor.Record(serverID, domain.DispatchStatusUpstreamError, &latency)
	}
}

// normalizeBody passes JSON through verbatim and wraps anything else as
// {"result": "<text>"} so tool results are always JSON.
func normalizeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, err := json.Marshal(map[string]string{"result": string(trimmed)})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(wrapped)
}

// stringify renders an argument value for use in a path, query or header.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// queryItems expands an argument into one or more query values; arrays become
// repeated entries per the declared type.
func queryItems(v any) ([]string, error) {
	if items, ok := v.([]any); ok {
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, err := queryValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := queryValue(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// queryValue renders a single query value. Structured values are JSON-encoded
// so an object never leaks Go map formatting onto the wire.
func queryValue(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return stringify(v), nil
	}
}
