// Package conversation defines the provider-neutral conversation model shared
// by the agent loop and the provider adapters. Turns never carry
// provider-specific wire shapes; translation happens only at the adapter
// boundary.
package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/apiforge-ai/apiforge/internal/errors"
)

const (
	// RoleUser marks a turn containing end-user text.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the model; it may carry text,
	// pending tool invocations, or both.
	RoleAssistant Role = "assistant"

	// RoleTool marks a turn carrying the result of exactly one invocation.
	RoleTool Role = "tool"
)

// Role identifies who produced a turn.
type Role string

// Invocation is one request by the model to call a specific tool, identified
// by an id scoped to its conversation.
type Invocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Turn is one entry in the ordered conversation sequence.
type Turn struct {
	Role Role `json:"role"`

	// Text is user input or assistant prose.
	Text string `json:"text,omitempty"`

	// Invocations are the tool calls an assistant turn requested.
	Invocations []Invocation `json:"invocations,omitempty"`

	// InvocationID links a tool turn back to the assistant invocation it
	// answers; unique within the conversation.
	InvocationID string `json:"invocation_id,omitempty"`

	// Result is the raw tool output (or error payload when IsError is set).
	Result json.RawMessage `json:"result,omitempty"`

	// IsError marks a tool turn whose Result is an error payload rather than
	// upstream output.
	IsError bool `json:"is_error,omitempty"`
}

// Usage accumulates provider token counts across the calls of one session.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// NewUserTurn creates a user turn.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// NewAssistantTurn creates an assistant turn carrying optional text and
// pending invocations.
func NewAssistantTurn(text string, invocations []Invocation) Turn {
	return Turn{Role: RoleAssistant, Text: text, Invocations: invocations}
}

// NewToolResultTurn creates a tool turn carrying a successful result.
func NewToolResultTurn(invocationID string, result json.RawMessage) Turn {
	return Turn{Role: RoleTool, InvocationID: invocationID, Result: result}
}

// NewToolErrorTurn creates a tool turn carrying an error payload of the shape
// {"error": kind, "message": detail} so the model can read the failure and
// self-correct.
func NewToolErrorTurn(invocationID, kind, message string) Turn {
	payload, err := json.Marshal(map[string]string{
		"error":   kind,
		"message": message,
	})
	if err != nil {
		// Both values are strings; marshaling cannot fail in practice.
		payload = []byte(`{"error":"internal","message":"failed to encode error"}`)
	}
	return Turn{Role: RoleTool, InvocationID: invocationID, Result: payload, IsError: true}
}

// Validate checks the conversation invariants: every tool turn must reference
// an invocation id emitted by a preceding assistant turn, and invocation ids
// must be unique within the conversation.
func Validate(turns []Turn) error {
	emitted := make(map[string]struct{})

	for i, turn := range turns {
		switch turn.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return fmt.Errorf("%w: turn %d has unknown role %q", errors.ErrBadRequest, i, turn.Role)
		}

		for _, inv := range turn.Invocations {
			if inv.ID == "" {
				return fmt.Errorf("%w: turn %d invocation %q has no id", errors.ErrBadRequest, i, inv.Name)
			}
			if _, dup := emitted[inv.ID]; dup {
				return fmt.Errorf("%w: duplicate invocation id %q", errors.ErrBadRequest, inv.ID)
			}
			emitted[inv.ID] = struct{}{}
		}

		if turn.Role == RoleTool {
			if turn.InvocationID == "" {
				return fmt.Errorf("%w: tool turn %d has no invocation id", errors.ErrBadRequest, i)
			}
			if _, ok := emitted[turn.InvocationID]; !ok {
				return fmt.Errorf(
					"%w: tool turn %d references unknown invocation id %q",
					errors.ErrBadRequest, i, turn.InvocationID,
				)
			}
		}
	}

	return nil
}

// CountInvocations returns the total number of invocations across all turns.
// Used by the OpenAI adapter to synthesize monotonic invocation ids when the
// wire protocol omits them.
func CountInvocations(turns []Turn) int {
	n := 0
	for _, turn := range turns {
		n += len(turn.Invocations)
	}
	return n
}
