package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/apiforge-ai/apiforge/internal/agent"
	"github.com/apiforge-ai/apiforge/internal/conversation"
	"github.com/apiforge-ai/apiforge/internal/provider"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

// ChatSettings are the per-call session parameters shared by the chat routes.
// Credentials pass through to the provider for this call only and are never
// persisted or logged.
type ChatSettings struct {
	Provider string `json:"provider,omitempty" doc:"LLM provider: anthropic (default) or openai" example:"anthropic"`
	Model    string `json:"model,omitempty"    doc:"Model name; provider default when empty"`
	APIKey   string `json:"api_key"            doc:"Provider API key for this call"`
	BaseURL  string `json:"base_url,omitempty" doc:"Override the provider's base URL"`

	System    string `json:"system,omitempty"     doc:"System prompt"`
	MaxTokens int    `json:"max_tokens,omitempty" doc:"Completion token bound; provider default when zero"`

	ServerIDs   []string           `json:"server_ids,omitempty"   doc:"Deployed servers whose tools the session composes"`
	CustomTools []tools.Definition `json:"custom_tools,omitempty" doc:"Caller-managed tool definitions added to the session"`

	// Authorization is injected into a tool invocation's arguments only when
	// that tool's schema declares an Authorization property.
	Authorization string `json:"authorization,omitempty" doc:"Upstream Authorization value passed through to opted-in tools"`

	MaxToolRounds int `json:"max_tool_rounds,omitempty" doc:"Tool round cap; default 5"`
}

// ChatRequest is one user message with optional prior conversation.
type ChatRequest struct {
	Body struct {
		ChatSettings
		Message string              `json:"message" doc:"User message to send"`
		History []conversation.Turn `json:"history,omitempty" doc:"Prior conversation turns"`

		// HandleTools selects internal tool execution (true, default) or
		// caller-managed execution where pending invocations are returned.
		HandleTools *bool `json:"handle_tools,omitempty"`
	}
}

// ChatResumeRequest continues a caller-managed loop by executing one pending
// invocation and resuming the conversation.
type ChatResumeRequest struct {
	Body struct {
		ChatSettings
		Invocation conversation.Invocation `json:"invocation" doc:"Pending invocation to execute"`
		History    []conversation.Turn     `json:"history"    doc:"Conversation turns including the pending assistant turn"`
	}
}

// ChatResponse is the outcome of one chat step.
type ChatResponse struct {
	Body struct {
		Response              string                    `json:"response"`
		ToolCalls             []conversation.Invocation `json:"tool_calls,omitempty"`
		History               []conversation.Turn       `json:"history"`
		StopReason            string                    `json:"stop_reason"`
		Usage                 conversation.Usage        `json:"usage"`
		RequiresToolExecution bool                      `json:"requires_tool_execution"`
	}
}

// RegisterChatRoutes sets up the agent chat endpoints.
func RegisterChatRoutes(routerAPI huma.API, deps Dependencies, apiPathPrefix string) {
	chatAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Chat"}

	huma.Register(
		chatAPI,
		huma.Operation{
			OperationID: "chat",
			Method:      http.MethodPost,
			Summary:     "Send a message to the agent",
			Tags:        tags,
		},
		func(ctx context.Context, input *ChatRequest) (*ChatResponse, error) {
			session, err := newSession(deps, input.Body.ChatSettings)
			if err != nil {
				return nil, err
			}

			handleTools := input.Body.HandleTools == nil || *input.Body.HandleTools
			var res *agent.StepResult
			if handleTools {
				res, err = session.Run(ctx, input.Body.Message, input.Body.History)
			} else {
				res, err = session.RunOnce(ctx, input.Body.Message, input.Body.History)
			}
			if err != nil {
				return nil, err
			}

			return chatResponse(res), nil
		},
	)

	huma.Register(
		chatAPI,
		huma.Operation{
			OperationID: "chatTools",
			Method:      http.MethodPost,
			Path:        "/tools",
			Summary:     "Execute a pending tool invocation and resume",
			Tags:        append(tags, "Tools"),
		},
		func(ctx context.Context, input *ChatResumeRequest) (*ChatResponse, error) {
			session, err := newSession(deps, input.Body.ChatSettings)
			if err != nil {
				return nil, err
			}

			res, err := session.Resume(ctx, input.Body.Invocation, input.Body.History)
			if err != nil {
				return nil, err
			}

			return chatResponse(res), nil
		},
	)
}

// newSession builds an agent session from per-call settings: provider adapter,
// composed toolset and session options.
func newSession(deps Dependencies, settings ChatSettings) (*agent.Session, error) {
	adapter, err := provider.ForProvider(settings.Provider, provider.WithLogger(deps.Logger))
	if err != nil {
		return nil, err
	}

	var toolset *registry.Toolset
	if len(settings.ServerIDs) > 0 {
		toolset, err = deps.Registry.Compose(settings.ServerIDs...)
		if err != nil {
			return nil, err
		}
		if len(settings.CustomTools) > 0 {
			toolset = toolset.Extend(settings.CustomTools)
		}
	} else {
		toolset = registry.ComposeDefinitions(settings.CustomTools)
	}

	opts := []agent.SessionOption{
		agent.WithModel(settings.Model),
		agent.WithSystem(settings.System),
		agent.WithMaxTokens(settings.MaxTokens),
		agent.WithCredentials(provider.Credentials{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
		}),
		agent.WithAuthorization(settings.Authorization),
		agent.WithMaxToolRounds(settings.MaxToolRounds),
		agent.WithLogger(deps.Logger),
	}

	return agent.NewSession(adapter, deps.Registry, toolset, deps.Upstream, opts...)
}

func chatResponse(res *agent.StepResult) *ChatResponse {
	out := &ChatResponse{}
	out.Body.Response = res.Text
	out.Body.ToolCalls = res.Invocations
	out.Body.History = res.Turns
	out.Body.StopReason = res.StopReason
	out.Body.Usage = res.Usage
	out.Body.RequiresToolExecution = res.RequiresToolExecution
	return out
}
