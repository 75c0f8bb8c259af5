// Package types defines the shared types used across all Arithmos packages.
//
// These types form the lingua franca between the tool registry, the transport
// layer, the tool client, and the orchestration loop. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

// Role identifies the author of a [Message] in a conversation.
type Role string

const (
	// RoleUser marks a message authored by the human asking the question.
	RoleUser Role = "user"

	// RoleAssistant marks a message produced by the Policy. It may carry
	// requested tool calls.
	RoleAssistant Role = "assistant"

	// RoleTool marks a message carrying the result of one executed tool call.
	RoleTool Role = "tool"
)

// Message represents a single entry in a conversation state.
//
// A conversation is an append-only ordered sequence of Messages owned by one
// orchestration run. Exactly one of the three shapes is populated:
// user text, an assistant turn (text and/or tool calls), or a tool result
// correlated to a prior call by ToolCallID.
type Message struct {
	// Role is the author of the message.
	Role Role

	// Content is the text content. For RoleTool messages it holds the
	// JSON-encoded [ToolCallResult] value or error payload.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	// Only populated when Role is RoleAssistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is RoleTool, identifying which requested
	// call this result answers.
	ToolCallID string
}

// UserMessage returns a Message seeding a conversation with the user's text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage returns a Message carrying the Policy's turn: answer text
// and zero or more requested tool calls.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResultMessage returns a Message answering the tool call identified by
// callID with the given result.
func ToolResultMessage(callID string, result ToolCallResult) Message {
	return Message{Role: RoleTool, Content: result.Encode(), ToolCallID: callID}
}

// ToolCall represents a single tool invocation requested by the Policy.
type ToolCall struct {
	// ID is the unique identifier for this call within one assistant turn
	// (Policy-assigned). Tool results are correlated back to it.
	ID string

	// Name is the tool name as announced during discovery.
	Name string

	// Arguments is the JSON-encoded argument object, e.g. `{"a":2,"b":3}`.
	Arguments string
}

// ParamType is the semantic type of a tool parameter or return value.
type ParamType string

const (
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeInteger, TypeNumber, TypeString, TypeBoolean:
		return true
	}
	return false
}

// ParamSpec describes one parameter of a tool.
type ParamSpec struct {
	// Name is the parameter name, unique within one tool.
	Name string

	// Type is the semantic type arguments are validated against.
	Type ParamType

	// Required reports whether the argument must be present on every call.
	Required bool

	// Description explains the parameter (included in discovery responses).
	Description string
}

// ToolDefinition describes a tool exposed over the invocation protocol.
// Immutable once registered.
type ToolDefinition struct {
	// Name is the tool's unique identifier within its namespace.
	Name string

	// Description explains what the tool does (surfaced to the Policy).
	Description string

	// Parameters is the ordered parameter schema. Canonical wire order is
	// lexicographic by parameter name.
	Parameters []ParamSpec

	// Returns is the semantic type of the success value.
	Returns ParamType
}

// Param returns the parameter spec named name, or nil if absent.
func (d ToolDefinition) Param(name string) *ParamSpec {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i]
		}
	}
	return nil
}
