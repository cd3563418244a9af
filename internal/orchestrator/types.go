// Package orchestrator drives the bounded conversation/tool-call cycle
// between an LLM provider and the skill registry.
package orchestrator

import (
	"context"

	"github.com/skillian-ai/skillian/internal/config"
)

// ChatMessage is one message in the conversation history.
type ChatMessage struct {
	Role       string     `json:"role"` // "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema is the provider-neutral description of one bound tool.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is a full-history request to a model provider.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
	Tools        []ToolSchema
	MaxTokens    int
	Temperature  float64
}

// ChatResponse is a provider's reply: free text, tool-invocation requests,
// or both.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	Model        string
	TokensInput  int
	TokensOutput int
	FinishReason string
}

// ModelProvider is the external model binding.
type ModelProvider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Models() []config.Model
}

// ToolResult is the structured outcome of one tool invocation, fed back to
// the model as result content.
type ToolResult struct {
	Tool      string `json:"tool"`
	Status    string `json:"status"` // "success", "error"
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Invocation records one performed tool call for the caller.
type Invocation struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    ToolResult     `json:"result"`
}

// Status is the loop's completion status.
type Status string

const (
	StatusDone      Status = "done"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
)

// Result is what one Run of the loop produces.
type Result struct {
	Answer      string       `json:"answer"`
	Invocations []Invocation `json:"invocations"`
	Status      Status       `json:"status"`
	Iterations  int          `json:"iterations"`
}
