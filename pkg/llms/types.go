// Package llms defines the chat-model provider boundary: an OpenAI-style
// tool-calling inference call and the message shapes that travel through it.
package llms

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages requesting tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID ties a tool-result message back to the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the model. Arguments is the
// raw JSON string as the model produced it; parsing (and parse failure
// handling) belongs to the dispatcher, not the provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises one callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the result of one inference call: textual content, tool-call
// requests, or both.
type Completion struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Tokens    int        `json:"tokens"`
}

// Provider is a chat-style inference backend with tool calling.
type Provider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error)
	GetModelName() string
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResultMessage builds the tool-result message for a given call id.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
