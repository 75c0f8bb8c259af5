package types

import "encoding/json"

// ErrorKind classifies a tool call failure.
//
// All tool-execution-time errors travel as data inside a [ToolCallResult]
// rather than as Go errors, so the orchestration loop has a single path for
// both domain and transport failures.
type ErrorKind string

const (
	// ErrUnknownTool means the invocation referenced an unregistered name.
	ErrUnknownTool ErrorKind = "unknown_tool"

	// ErrInvalidArgument means the arguments did not match the declared
	// parameter schema.
	ErrInvalidArgument ErrorKind = "invalid_argument"

	// ErrDomain means the handler itself rejected the call
	// (e.g. divide by zero, factorial of a negative number).
	ErrDomain ErrorKind = "domain"

	// ErrTransport means the call never completed: connection reset,
	// timeout, or a protocol-level failure between client and server.
	ErrTransport ErrorKind = "transport"
)

// ToolCallResult is the outcome of executing one [ToolCall]: either a success
// value or a classified failure. The zero value is a success with an empty
// value.
type ToolCallResult struct {
	// Value is the JSON-encoded success value. Empty on failure.
	Value string `json:"value,omitempty"`

	// Kind classifies the failure. Empty on success.
	Kind ErrorKind `json:"kind,omitempty"`

	// Message is the human-readable failure description. Empty on success.
	Message string `json:"message,omitempty"`
}

// Success returns a ToolCallResult carrying the JSON-encoded value.
func Success(value string) ToolCallResult {
	return ToolCallResult{Value: value}
}

// Failure returns a ToolCallResult carrying a classified error.
func Failure(kind ErrorKind, message string) ToolCallResult {
	return ToolCallResult{Kind: kind, Message: message}
}

// Failed reports whether the result is a failure.
func (r ToolCallResult) Failed() bool {
	return r.Kind != ""
}

// Encode returns the canonical JSON encoding of the result, as inserted into
// tool result messages and transported over the wire. Encoding a result never
// fails — the struct contains only strings.
func (r ToolCallResult) Encode() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// DecodeFailure parses the canonical JSON failure encoding produced by
// [ToolCallResult.Encode]. Error payloads from foreign servers that do not
// follow the encoding are classified as domain failures with the raw payload
// as the message.
func DecodeFailure(payload string) ToolCallResult {
	var r ToolCallResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil || r.Kind == "" {
		return Failure(ErrDomain, payload)
	}
	return r
}
