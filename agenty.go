package agenty

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Role identifies the author of a conversational turn.
type Role string

// Roles of a Message.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Metadata is arbitrary per-message key/value data (e.g. {"rating": 7}).
type Metadata map[string]any

// Message is one immutable conversational turn. Tool-result messages carry
// ToolCallID and Name; assistant turns that request tool execution carry
// ToolCalls. A Message is owned by the ChatHistory it was appended to and
// must not be mutated afterwards.
type Message struct {
	ID         string            `json:"id,omitempty"`
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	Name       string            `json:"name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []MessageToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time         `json:"timestamp,omitzero"`
}

// MessageToolCall is the provider-native tool invocation record embedded in an
// assistant message (arguments still serialized as a JSON string).
type MessageToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function together with its raw argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is the contract for an LLM-callable instrument.
// It is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with LLM tool definitions).
	Parameters() map[string]any
	// Execute runs the tool with a JSON argument payload and returns the JSON result.
	Execute(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// ToolMetadata is implemented by tools created with NewTool and provides optional per-tool
// settings. ToolSet uses Timeout() to override the default execution timeout when set; tags,
// version, and the dangerous flag are exposed for orchestration or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// ToolCall is a single execution request as parsed from a model reply.
// It is ephemeral: produced by Chat.DetectToolCalls, consumed by
// ToolSet.Execute, and discarded after its ToolCallResult exists.
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage // JSON payload of arguments
}

// ToolCallResult is the outcome of one tool call. Err is set when the call
// failed (unknown tool, validation, handler error); Result holds the tool's
// JSON output otherwise.
type ToolCallResult struct {
	CallID   string
	ToolName string
	Result   json.RawMessage
	Err      error
}

// Content renders the result as tool-message text for the model. Failures keep
// their self-correction message for ClientError and a masked description for
// everything else, so internals are never shown to the model.
func (r ToolCallResult) Content() string {
	if r.Err == nil {
		return string(r.Result)
	}
	var ce *ClientError
	if errors.As(r.Err, &ce) {
		return ce.Error()
	}
	if errors.Is(r.Err, ErrToolNotFound) {
		return "tool not found: " + r.ToolName
	}
	return "tool execution failed"
}
