// Package policy defines the decision-making boundary of the orchestration
// loop.
//
// A [Policy] receives the conversation so far plus the discovered tool
// catalogue and answers with a [Decision]: either final answer text, or a
// list of tool calls to execute before asking again. The orchestrator does
// not know or care how a decision is produced — the sibling packages openai
// and anyllm back it with language models, and mock scripts it for tests.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package policy

import (
	"context"

	"github.com/MrWong99/arithmos/pkg/types"
)

// Usage holds token accounting information returned by a model-backed
// policy. All counts are in the model's native token unit.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Request carries everything a policy needs to pick the next action.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type Request struct {
	// Messages is the ordered conversation state. The last message is either
	// the user's query or a batch of tool results.
	Messages []types.Message

	// Tools is the catalogue the policy may draw calls from.
	Tools []types.ToolDefinition

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation.
	SystemPrompt string

	// Temperature controls output randomness for model-backed policies.
	// Nil means use the backend default; an explicit zero is passed through
	// as-is.
	Temperature *float64

	// MaxTokens caps response generation for model-backed policies. Zero
	// means use the backend default.
	MaxTokens int
}

// Decision is one policy step. An empty ToolCalls list means Content is the
// final answer and the run terminates.
type Decision struct {
	// Content is the assistant's text. Empty when the policy responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists the tool invocations the policy requests, in the
	// order it produced them. The orchestrator executes them and feeds the
	// results back in the same order.
	ToolCalls []types.ToolCall

	// Usage contains token accounting when the backend reports it.
	Usage Usage
}

// Policy is the abstraction over any decision-making backend.
type Policy interface {
	// Decide returns the next action for the given conversation. A non-nil
	// error aborts the run; tool execution failures never reach here — they
	// flow back to the policy as tool-result messages.
	Decide(ctx context.Context, req Request) (*Decision, error)
}

// ParameterSchema renders a tool definition's parameter list as the
// JSON-Schema object map that model APIs expect for function declarations.
// Properties follow the definition's parameter order via the required list;
// the map itself is unordered by nature.
func ParameterSchema(def types.ToolDefinition) map[string]any {
	props := make(map[string]any, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
