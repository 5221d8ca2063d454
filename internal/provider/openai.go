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
	openaiDefaultBaseURL = "https://api.openai.com/v1"
	openaiChatPath       = "/chat/completions"
	openaiDefaultModel   = "gpt-4o"
)

// OpenAIAdapter implements the function-calling protocol: tool definitions
// are passed as function schemas and a response carries at most one set of
// function calls per turn. Some OpenAI-compatible backends omit tool-call
// ids entirely; those are synthesized locally from a per-conversation
// monotonic counter.
type OpenAIAdapter struct {
	httpClient *http.Client
	logger     hclog.Logger
}

// NewOpenAIAdapter creates the OpenAI protocol adapter.
func NewOpenAIAdapter(opt ...Option) *OpenAIAdapter {
	o := newOptions(opt...)
	return &OpenAIAdapter{
		httpClient: o.httpClient,
		logger:     o.logger.Named("openai"),
	}
}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

type openaiFunction struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  tools.Schema `json:"parameters"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunctionCall struct {
	Name string `json:"name"`
	// Arguments is a JSON-encoded object, per the wire protocol.
	Arguments string `json:"arguments"`
}

type openaiToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type"`
	Function openaiFunctionCall `json:"function"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	Tools     []openaiTool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openaiErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Adapter.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Credentials.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai API key not configured", errors.ErrProvider)
	}

	model := req.Model
	if model == "" {
		model = openaiDefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := openaiMessages(req.System, req.Turns)
	if err != nil {
		return nil, err
	}

	wire := openaiRequest{
		Model:     model,
		Messages:  messages,
		Tools:     openaiTools(req.Tools),
		MaxTokens: maxTokens,
	}

	base := strings.TrimSuffix(req.Credentials.BaseURL, "/")
	if base == "" {
		base = openaiDefaultBaseURL
	}

	headers := map[string]string{
		"Authorization": "Bearer " + req.Credentials.APIKey,
	}

	a.logger.Debug("Calling provider", "model", model, "messages", len(messages), "tools", len(wire.Tools))

	status, body, err := postJSON(ctx, a.httpClient, base+openaiChatPath, headers, wire)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, openaiError(status, body)
	}

	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding openai response: %w", errors.ErrProviderProtocol, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response has no choices", errors.ErrProviderProtocol)
	}

	choice := resp.Choices[0]
	result := &Result{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	result.Usage.InputTokens = resp.Usage.PromptTokens
	result.Usage.OutputTokens = resp.Usage.CompletionTokens

	// Synthesized ids continue the per-conversation monotonic counter so they
	// never collide with ids already present in the history.
	nextID := conversation.CountInvocations(req.Turns)
	for _, call := range choice.Message.ToolCalls {
		id := call.ID
		if id == "" {
			nextID++
			id = fmt.Sprintf("call_%d", nextID)
		}

		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf(
					"%w: tool call %q has undecodable arguments: %w",
					errors.ErrProviderProtocol, call.Function.Name, err,
				)
			}
		}

		result.Invocations = append(result.Invocations, conversation.Invocation{
			ID:        id,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return result, nil
}

// openaiMessages translates neutral turns into the wire message sequence.
// The system prompt, when present, leads the sequence.
func openaiMessages(system string, turns []conversation.Turn) ([]openaiMessage, error) {
	messages := make([]openaiMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: system})
	}

	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			messages = append(messages, openaiMessage{Role: "user", Content: turn.Text})

		case conversation.RoleAssistant:
			msg := openaiMessage{Role: "assistant", Content: turn.Text}
			for _, inv := range turn.Invocations {
				args, err := json.Marshal(inv.Arguments)
				if err != nil {
					return nil, fmt.Errorf("%w: encoding arguments for %q: %w", errors.ErrBadRequest, inv.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openaiToolCall{
					ID:   inv.ID,
					Type: "function",
					Function: openaiFunctionCall{
						Name:      inv.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(messages, msg)

		case conversation.RoleTool:
			messages = append(messages, openaiMessage{
				Role:       "tool",
				Content:    string(turn.Result),
				ToolCallID: turn.InvocationID,
			})

		default:
			return nil, fmt.Errorf("%w: unknown turn role %q", errors.ErrBadRequest, turn.Role)
		}
	}

	return messages, nil
}

func openaiTools(defs []tools.Definition) []openaiTool {
	out := make([]openaiTool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return out
}

func openaiError(status int, body []byte) error {
	var envelope openaiErrorEnvelope
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
