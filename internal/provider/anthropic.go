package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/apiforge-ai/apiforge/internal/conversation"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicMessagesPath   = "/v1/messages"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultModel   = "claude-3-haiku-20240307"
)

// AnthropicAdapter implements the structured tool-use protocol: tool
// definitions are a typed array, responses interleave text and tool_use
// content blocks, and every tool_use block carries a provider-assigned
// invocation id that must be echoed back unchanged.
type AnthropicAdapter struct {
	httpClient *http.Client
	logger     hclog.Logger
}

// NewAnthropicAdapter creates the Anthropic protocol adapter.
func NewAnthropicAdapter(opt ...Option) *AnthropicAdapter {
	o := newOptions(opt...)
	return &AnthropicAdapter{
		httpClient: o.httpClient,
		logger:     o.logger.Named("anthropic"),
	}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

type anthropicContentBlock struct {
	Type string `json:"type"`

	// text blocks
	Text string `json:"text,omitempty"`

	// tool_use blocks
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema tools.Schema `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorEnvelope struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Adapter.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Credentials.APIKey) == "" {
		return nil, fmt.Errorf("%w: anthropic API key not configured", errors.ErrProvider)
	}

	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := anthropicMessages(req.Turns)
	if err != nil {
		return nil, err
	}

	wire := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  messages,
		Tools:     anthropicTools(req.Tools),
	}

	base := strings.TrimSuffix(req.Credentials.BaseURL, "/")
	if base == "" {
		base = anthropicDefaultBaseURL
	}

	headers := map[string]string{
		"x-api-key":         req.Credentials.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}

	a.logger.Debug("Calling provider", "model", model, "messages", len(messages), "tools", len(wire.Tools))

	status, body, err := postJSON(ctx, a.httpClient, base+anthropicMessagesPath, headers, wire)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, anthropicError(status, body)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding anthropic response: %w", errors.ErrProviderProtocol, err)
	}
	if resp.StopReason == "" && len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: anthropic response has no content and no stop reason", errors.ErrProviderProtocol)
	}

	result := &Result{StopReason: resp.StopReason}
	result.Usage.InputTokens = resp.Usage.InputTokens
	result.Usage.OutputTokens = resp.Usage.OutputTokens

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			// The provider-assigned id must be echoed back unchanged when the
			// result is returned; a tool_use block without one is unusable.
			if block.ID == "" {
				return nil, fmt.Errorf("%w: tool_use block for %q has no id", errors.ErrProviderProtocol, block.Name)
			}
			result.Invocations = append(result.Invocations, conversation.Invocation{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		default:
			return nil, fmt.Errorf("%w: unknown content block type %q", errors.ErrProviderProtocol, block.Type)
		}
	}
	result.Text = text.String()

	return result, nil
}

// anthropicMessages translates neutral turns into the wire message sequence.
// Consecutive tool turns are grouped into a single user message of tool_result
// blocks, as the protocol requires.
func anthropicMessages(turns []conversation.Turn) ([]anthropicMessage, error) {
	messages := make([]anthropicMessage, 0, len(turns))
	var pendingResults []anthropicContentBlock

	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropicMessage{Role: "user", Content: pendingResults})
			pendingResults = nil
		}
	}

	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			flush()
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: turn.Text}},
			})

		case conversation.RoleAssistant:
			flush()
			blocks := make([]anthropicContentBlock, 0, 1+len(turn.Invocations))
			if turn.Text != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: turn.Text})
			}
			for _, inv := range turn.Invocations {
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    inv.ID,
					Name:  inv.Name,
					Input: inv.Arguments,
				})
			}
			messages = append(messages, anthropicMessage{Role: "assistant", Content: blocks})

		case conversation.RoleTool:
			pendingResults = append(pendingResults, anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: turn.InvocationID,
				Content:   string(turn.Result),
				IsError:   turn.IsError,
			})

		default:
			return nil, fmt.Errorf("%w: unknown turn role %q", errors.ErrBadRequest, turn.Role)
		}
	}
	flush()

	return messages, nil
}

func anthropicTools(defs []tools.Definition) []anthropicTool {
	out := make([]anthropicTool, 0, len(defs))
	for _, def := range defs {
		out = append(out, anthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return out
}

func anthropicError(status int, body []byte) error {
	var envelope anthropicErrorEnvelope
	kind := "api_error"
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		kind = envelope.Error.Type
		message = envelope.Error.Message
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = "authentication_error"
	}
	return fmt.Errorf("%w: %s (HTTP %d): %s", errors.ErrProvider, kind, status, message)
}
