// Package provider translates the provider-neutral conversation and toolset
// into provider-specific LLM requests and back. Two protocol variants are
// implemented: the Anthropic structured tool-use protocol and the OpenAI
// function-calling protocol. Conversation state stays provider-neutral;
// translation happens only here.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/conversation"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// defaultMaxTokens bounds a completion when the caller does not specify one.
const defaultMaxTokens = 4096

// defaultHTTPTimeout bounds a single provider round trip.
const defaultHTTPTimeout = 5 * time.Minute

// Credentials are passed through per call and never persisted.
type Credentials struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider's default endpoint, e.g. for
	// OpenAI-compatible gateways.
	BaseURL string
}

// Request is one provider round trip: the full conversation so far plus the
// composed toolset and model configuration.
type Request struct {
	Model       string
	System      string
	Turns       []conversation.Turn
	Tools       []tools.Definition
	MaxTokens   int
	Credentials Credentials
}

// Result is the normalized outcome of one provider call.
type Result struct {
	// Text is the assistant prose, if any.
	Text string

	// Invocations are the tool calls the model requested this turn.
	Invocations []conversation.Invocation

	// StopReason is the provider's stop reason, passed through verbatim
	// (end_turn, tool_use, max_tokens, stop, tool_calls, length, ...).
	StopReason string

	// Usage reports token counts for this call.
	Usage conversation.Usage
}

// Adapter is the polymorphic boundary over provider protocols.
// Implementations do not retry; retry policy belongs to the caller.
type Adapter interface {
	// Name identifies the protocol variant ("anthropic" or "openai").
	Name() string

	// Complete performs one provider round trip. Transport and authentication
	// failures surface as ErrProvider; malformed responses as
	// ErrProviderProtocol. Neither mutates the request's conversation turns.
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Option configures an adapter.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     hclog.Logger
}

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger used by the adapter.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opt ...Option) options {
	o := options{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     hclog.NewNullLogger(),
	}
	for _, fn := range opt {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// ForProvider selects the adapter for a provider name.
// An empty name defaults to the Anthropic variant, matching the original
// service behavior.
func ForProvider(name string, opt ...Option) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic":
		return NewAnthropicAdapter(opt...), nil
	case "openai":
		return NewOpenAIAdapter(opt...), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", errors.ErrBadRequest, name)
	}
}

// postJSON issues one JSON POST and returns the status code and body.
// Transport-level failures are wrapped as ErrProvider.
func postJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	headers map[string]string,
	payload any,
) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: marshal request: %w", errors.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: create request: %w", errors.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: network: %w", errors.ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %w", errors.ErrProvider, err)
	}

	return resp.StatusCode, body, nil
}
