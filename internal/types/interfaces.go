package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a conversation with tool definitions and returns
	// the model's response with any tool calls. The messages slice carries the
	// full turn history including prior tool invocations and their results,
	// which is what lets the model chain tool calls across rounds.
	CompleteWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*LLMToolResponse, error)
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// ToolResult carries the outcome of one tool invocation back to the model.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`    // Matches ToolCall.ID
	Name      string `json:"name,omitempty"` // Matches ToolCall.Name (Gemini correlates by name, not id)
	Content   string `json:"content"`        // Result content
	IsError   bool   `json:"is_error"`       // Whether this is an error result
}

// Message is one entry in a multi-round conversation. Exactly one of the
// content fields is meaningful per role: Text for plain user/assistant text,
// ToolCalls for an assistant message that requested tools, ToolResults for
// the user message that answers them.
type Message struct {
	Role        string       `json:"role"` // "user" or "assistant"
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`       // Token usage metrics
}
