package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/conversation"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

func anthropicTestTools() []tools.Definition {
	return []tools.Definition{
		{
			Name:        "get_user",
			Description: "Fetch a user",
			InputSchema: tools.Schema{
				Type: "object",
				Properties: map[string]tools.Property{
					"user_id": {Type: "string", Description: "User id"},
				},
				Required: []string{"user_id"},
			},
		},
	}
}

func TestAnthropicAdapter_Complete_TextAnswer(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type":"text","text":"Hello there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter()
	result, err := adapter.Complete(context.Background(), Request{
		Turns:       []conversation.Turn{conversation.NewUserTurn("hi")},
		Tools:       anthropicTestTools(),
		Credentials: Credentials{APIKey: "test-key", BaseURL: srv.URL},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", result.Text)
	assert.Empty(t, result.Invocations)
	assert.Equal(t, "end_turn", result.StopReason)
	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 7, result.Usage.OutputTokens)

	// Defaults applied on the wire.
	assert.Equal(t, "claude-3-haiku-20240307", captured["model"])
	assert.Equal(t, float64(4096), captured["max_tokens"])

	// Tool definitions passed as a typed array with input_schema.
	wireTools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, wireTools, 1)
	tool := wireTools[0].(map[string]any)
	assert.Equal(t, "get_user", tool["name"])
	require.Contains(t, tool, "input_schema")
}

func TestAnthropicAdapter_Complete_ToolUse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type":"text","text":"Let me look that up."},
				{"type":"tool_use","id":"toolu_01","name":"get_user","input":{"user_id":"u-1"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 15}
		}`))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter()
	result, err := adapter.Complete(context.Background(), Request{
		Turns:       []conversation.Turn{conversation.NewUserTurn("who is u-1?")},
		Tools:       anthropicTestTools(),
		Credentials: Credentials{APIKey: "test-key", BaseURL: srv.URL},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me look that up.", result.Text)
	assert.Equal(t, "tool_use", result.StopReason)
	require.Len(t, result.Invocations, 1)
	inv := result.Invocations[0]
	assert.Equal(t, "toolu_01", inv.ID)
	assert.Equal(t, "get_user", inv.Name)
	assert.Equal(t, map[string]any{"user_id": "u-1"}, inv.Arguments)
}

func TestAnthropicAdapter_Complete_ToolResultsGrouped(t *testing.T) {
	t.Parallel()

	var captured struct {
		Messages []anthropicMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn","usage":{}}`))
	}))
	defer srv.Close()

	turns := []conversation.Turn{
		conversation.NewUserTurn("fetch both"),
		conversation.NewAssistantTurn("", []conversation.Invocation{
			{ID: "toolu_01", Name: "get_user", Arguments: map[string]any{"user_id": "u-1"}},
			{ID: "toolu_02", Name: "get_user", Arguments: map[string]any{"user_id": "u-2"}},
		}),
		conversation.NewToolResultTurn("toolu_01", json.RawMessage(`{"name":"Ada"}`)),
		conversation.NewToolErrorTurn("toolu_02", "upstream unavailable", "connection refused"),
	}

	adapter := NewAnthropicAdapter()
	_, err := adapter.Complete(context.Background(), Request{
		Turns:       turns,
		Credentials: Credentials{APIKey: "test-key", BaseURL: srv.URL},
	})
	require.NoError(t, err)

	// user, assistant, then ONE user message holding both tool_result blocks.
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "user", captured.Messages[2].Role)
	require.Len(t, captured.Messages[2].Content, 2)

	first := captured.Messages[2].Content[0]
	assert.Equal(t, "tool_result", first.Type)
	assert.Equal(t, "toolu_01", first.ToolUseID)
	assert.False(t, first.IsError)

	second := captured.Messages[2].Content[1]
	assert.Equal(t, "toolu_02", second.ToolUseID)
	assert.True(t, second.IsError)
	assert.Contains(t, second.Content, "connection refused")
}

func TestAnthropicAdapter_Complete_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "authentication failure",
			status:  http.StatusUnauthorized,
			body:    `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantErr: errors.ErrProvider,
			wantMsg: "authentication_error",
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			wantErr: errors.ErrProvider,
			wantMsg: "rate_limit_error",
		},
		{
			name:    "undecodable body",
			status:  http.StatusOK,
			body:    `{{{`,
			wantErr: errors.ErrProviderProtocol,
		},
		{
			name:    "tool_use without id",
			status:  http.StatusOK,
			body:    `{"content":[{"type":"tool_use","name":"get_user","input":{}}],"stop_reason":"tool_use","usage":{}}`,
			wantErr: errors.ErrProviderProtocol,
		},
		{
			name:    "unknown block type",
			status:  http.StatusOK,
			body:    `{"content":[{"type":"thinking","text":"hmm"}],"stop_reason":"end_turn","usage":{}}`,
			wantErr: errors.ErrProviderProtocol,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			adapter := NewAnthropicAdapter()
			_, err := adapter.Complete(context.Background(), Request{
				Turns:       []conversation.Turn{conversation.NewUserTurn("hi")},
				Credentials: Credentials{APIKey: "test-key", BaseURL: srv.URL},
			})
			require.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestAnthropicAdapter_Complete_MissingAPIKey(t *testing.T) {
	t.Parallel()

	adapter := NewAnthropicAdapter()
	_, err := adapter.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, errors.ErrProvider)
}

func TestAnthropicAdapter_Complete_NetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // Closed before use.

	adapter := NewAnthropicAdapter()
	_, err := adapter.Complete(context.Background(), Request{
		Turns:       []conversation.Turn{conversation.NewUserTurn("hi")},
		Credentials: Credentials{APIKey: "test-key", BaseURL: srv.URL},
	})
	require.ErrorIs(t, err, errors.ErrProvider)
}
