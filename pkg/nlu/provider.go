package nlu

import "context"

// Message roles understood by the providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of the tool-calling conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model request to run an action.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]interface{}
}

// Tool advertises one action to the model.
type Tool struct {
	Name        string
	Description string
	// Schema is a JSON schema object for the tool input.
	Schema map[string]interface{}
}

// LLMRequest is one model call.
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	MaxTokens    int
}

// LLMResponse is the model output for one call.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Provider is an LLM API backend.
type Provider interface {
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)
	Provider() string
}
