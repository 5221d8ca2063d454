// Package agent drives the multi-turn conversation loop: call the provider,
// execute any tool invocations it requests, feed the results back, and repeat
// until a final answer or the round limit. One Session serves one user turn
// and is cheap to construct per request; conversations never share state
// except the injected registry.
package agent

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/apiforge-ai/apiforge/internal/conversation"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/provider"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/upstream"
)

const (
	// DefaultMaxToolRounds caps tool-execution rounds per user message so a
	// misbehaving model cannot loop forever.
	DefaultMaxToolRounds = 5

	// DefaultMaxParallelTools bounds concurrent upstream calls within one round.
	DefaultMaxParallelTools = 4

	// StopReasonTurnLimit is reported when the round cap ends the loop.
	StopReasonTurnLimit = "turn_limit_exceeded"

	// turnLimitNotice is surfaced as the final answer when the cap is hit.
	turnLimitNotice = "Turn limit exceeded: the conversation used the maximum number of tool rounds without reaching a final answer."

	// authorizationProperty is the input-schema property that opts a tool into
	// upstream Authorization pass-through.
	authorizationProperty = "Authorization"
)

// Session executes agent turns against one composed toolset.
// NewSession should be used to create instances of Session.
type Session struct {
	adapter  provider.Adapter
	registry *registry.Registry
	toolset  *registry.Toolset
	client   *upstream.Client
	logger   hclog.Logger

	model       string
	system      string
	maxTokens   int
	credentials provider.Credentials

	// authorization is the upstream Authorization header value injected into
	// invocations whose tool schema declares an Authorization property.
	authorization string

	maxRounds   int
	maxParallel int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithModel sets the model name passed to the provider.
func WithModel(model string) SessionOption {
	return func(s *Session) { s.model = model }
}

// WithSystem sets the system prompt.
func WithSystem(system string) SessionOption {
	return func(s *Session) { s.system = system }
}

// WithMaxTokens bounds the provider completion size.
func WithMaxTokens(n int) SessionOption {
	return func(s *Session) { s.maxTokens = n }
}

// WithCredentials sets the per-call provider credentials.
func WithCredentials(c provider.Credentials) SessionOption {
	return func(s *Session) { s.credentials = c }
}

// WithAuthorization sets the upstream Authorization value passed through to
// tools that declare an Authorization input property.
func WithAuthorization(value string) SessionOption {
	return func(s *Session) { s.authorization = value }
}

// WithMaxToolRounds overrides the tool-round cap.
func WithMaxToolRounds(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// WithMaxParallelTools overrides the per-round concurrency bound.
func WithMaxParallelTools(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l hclog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l.Named("agent")
		}
	}
}

// NewSession creates a session over the given adapter, registry, toolset and
// upstream client.
func NewSession(
	adapter provider.Adapter,
	reg *registry.Registry,
	toolset *registry.Toolset,
	client *upstream.Client,
	opt ...SessionOption,
) (*Session, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: provider adapter cannot be nil", errors.ErrBadRequest)
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: registry cannot be nil", errors.ErrBadRequest)
	}
	if toolset == nil {
		return nil, fmt.Errorf("%w: toolset cannot be nil", errors.ErrBadRequest)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: upstream client cannot be nil", errors.ErrBadRequest)
	}

	s := &Session{
		adapter:     adapter,
		registry:    reg,
		toolset:     toolset,
		client:      client,
		logger:      hclog.NewNullLogger(),
		maxRounds:   DefaultMaxToolRounds,
		maxParallel: DefaultMaxParallelTools,
	}
	for _, fn := range opt {
		if fn != nil {
			fn(s)
		}
	}

	return s, nil
}

// StepResult is what one agent step hands back to the caller.
type StepResult struct {
	// Text is the final assistant answer (or the turn-limit notice).
	Text string

	// Invocations are pending tool calls when the caller manages execution
	// itself (RunOnce); empty when the session ran them internally.
	Invocations []conversation.Invocation

	// Turns is the updated conversation including every turn appended during
	// this step.
	Turns []conversation.Turn

	// StopReason is the provider's stop reason for the last call, or
	// StopReasonTurnLimit.
	StopReason string

	// Usage accumulates token counts across all provider calls of this step.
	Usage conversation.Usage

	// Rounds is how many tool-execution rounds ran.
	Rounds int

	// RequiresToolExecution is set when Invocations await a caller-managed
	// execution loop.
	RequiresToolExecution bool
}

// Run drives one full user turn: provider call, tool execution, and repeat
// until the model stops requesting tools or the round cap is reached.
//
// Errors local to one invocation become tool-result turns so the model always
// receives a result for every invocation it requested. Provider errors abort
// the turn; the returned StepResult then carries every turn completed before
// the failure so the caller can retain state and retry.
func (s *Session) Run(ctx context.Context, message string, history []conversation.Turn) (*StepResult, error) {
	turns := appendUser(history, message)
	return s.loop(ctx, turns, true)
}

// RunOnce performs a single provider step and surfaces pending invocations to
// a caller-managed execution loop instead of running them internally.
func (s *Session) RunOnce(ctx context.Context, message string, history []conversation.Turn) (*StepResult, error) {
	turns := appendUser(history, message)
	return s.loop(ctx, turns, false)
}

// Resume executes one caller-selected invocation, appends its tool-result
// turn, and continues the loop to the model's next answer. It backs the
// "resume after tool results" surface.
func (s *Session) Resume(
	ctx context.Context,
	inv conversation.Invocation,
	history []conversation.Turn,
) (*StepResult, error) {
	if err := conversation.Validate(history); err != nil {
		return nil, err
	}

	turns := make([]conversation.Turn, len(history), len(history)+1)
	copy(turns, history)
	turns = append(turns, s.executeInvocation(ctx, inv))

	return s.loop(ctx, turns, true)
}

func appendUser(history []conversation.Turn, message string) []conversation.Turn {
	turns := make([]conversation.Turn, len(history), len(history)+1)
	copy(turns, history)
	if message != "" {
		turns = append(turns, conversation.NewUserTurn(message))
	}
	return turns
}

// loop is the state machine: ProviderCall -> (FinalAnswer | ToolExecution) ->
// ProviderCall -> ... -> FinalAnswer.
func (s *Session) loop(ctx context.Context, turns []conversation.Turn, handleTools bool) (*StepResult, error) {
	result := &StepResult{}

	for {
		res, err := s.adapter.Complete(ctx, provider.Request{
			Model:       s.model,
			System:      s.system,
			Turns:       turns,
			Tools:       s.toolset.Definitions(),
			MaxTokens:   s.maxTokens,
			Credentials: s.credentials,
		})
		if err != nil {
			// The turn aborts but completed turns are retained for the caller.
			result.Turns = turns
			return result, err
		}

		turns = append(turns, conversation.NewAssistantTurn(res.Text, res.Invocations))
		result.Usage.Add(res.Usage)
		result.StopReason = res.StopReason
		result.Text = res.Text

		if len(res.Invocations) == 0 {
			result.Turns = turns
			return result, nil
		}

		if !handleTools {
			result.Turns = turns
			result.Invocations = res.Invocations
			result.RequiresToolExecution = true
			return result, nil
		}

		if result.Rounds >= s.maxRounds {
			s.logger.Warn("Turn limit exceeded", "rounds", result.Rounds)
			result.Turns = turns
			result.Text = turnLimitNotice
			result.StopReason = StopReasonTurnLimit
			return result, nil
		}
		result.Rounds++

		toolTurns := s.executeRound(ctx, res.Invocations)
		turns = append(turns, toolTurns...)

		if err := ctx.Err(); err != nil {
			// Cancelled between states: state up to the last completed state
			// is retained so the conversation can resume later.
			result.Turns = turns
			return result, err
		}
	}
}

// executeRound runs the sibling invocations of one assistant turn, in
// parallel up to the configured bound, and returns exactly one tool turn per
// invocation in invocation order regardless of completion order.
func (s *Session) executeRound(ctx context.Context, invocations []conversation.Invocation) []conversation.Turn {
	toolTurns := make([]conversation.Turn, len(invocations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i, inv := range invocations {
		g.Go(func() error {
			toolTurns[i] = s.executeInvocation(gctx, inv)
			return nil
		})
	}
	// Workers never return errors; failures become tool turns.
	_ = g.Wait()

	return toolTurns
}

// executeInvocation runs one invocation and always produces a tool turn;
// failures carry an error payload rather than propagating.
func (s *Session) executeInvocation(ctx context.Context, inv conversation.Invocation) conversation.Turn {
	args := s.injectAuthorization(inv)

	outcome, err := s.client.CallTool(ctx, s.registry, s.toolset, inv.Name, args)
	if err != nil {
		s.logger.Warn("Tool invocation failed", "tool", inv.Name, "error", err)
		return conversation.NewToolErrorTurn(inv.ID, errorKind(err), err.Error())
	}

	if !outcome.OK() {
		// Upstream status errors are data for the model, not local failures.
		return conversation.NewToolErrorTurn(
			inv.ID,
			fmt.Sprintf("HTTP %d", outcome.Status),
			string(outcome.Body),
		)
	}

	return conversation.NewToolResultTurn(inv.ID, outcome.Body)
}

// injectAuthorization adds the session's upstream Authorization value to an
// invocation's arguments, but only when the tool's input schema declares an
// Authorization property and the model did not supply one itself.
func (s *Session) injectAuthorization(inv conversation.Invocation) map[string]any {
	args := inv.Arguments
	if s.authorization == "" {
		return args
	}

	binding, ok := s.toolset.Get(inv.Name)
	if !ok {
		return args
	}
	if _, declared := binding.Definition.InputSchema.Properties[authorizationProperty]; !declared {
		return args
	}
	if _, supplied := args[authorizationProperty]; supplied {
		return args
	}

	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out[authorizationProperty] = s.authorization

	return out
}

// errorKind maps a dispatch error onto the taxonomy kind reported to the model.
func errorKind(err error) string {
	switch {
	case stdErrors.Is(err, errors.ErrToolNotFound):
		return "tool not found"
	case stdErrors.Is(err, errors.ErrServerNotFound):
		return "server not found"
	case stdErrors.Is(err, errors.ErrServerInactive):
		return "server inactive"
	case stdErrors.Is(err, errors.ErrMissingParameter):
		return "missing required parameter"
	case stdErrors.Is(err, errors.ErrTypeMismatch):
		return "argument type mismatch"
	case stdErrors.Is(err, errors.ErrUpstreamUnavailable):
		return "upstream unavailable"
	case stdErrors.Is(err, errors.ErrConfiguration):
		return "invalid configuration"
	default:
		return "execution failed"
	}
}
