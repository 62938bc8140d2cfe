package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteStructured sends a prompt with a JSON schema and returns the raw
	// JSON text of the structured reply. image paths may be attached for
	// vision-capable models (empty string = no image).
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}, imagePath string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns
	// response text plus any tool calls the model requested.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls"`
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", ...
	Usage      UsageMetadata `json:"usage"`
}

// ModelProfile describes a routable model for selection scoring.
type ModelProfile struct {
	Name         string
	Capabilities []string // "vision", "coding", "reasoning", "tools", "general"
	AvgLatency   float64  // seconds, recency-weighted
	ErrorCount   int
	TrustScore   float64 // [0,1]
	Available    bool
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SkillExecutor is the minimal execution surface the controller needs from
// the skill registry.
type SkillExecutor interface {
	Has(name string) bool
	Execute(ctx context.Context, name string, params map[string]interface{}) (string, error)
	RecordExecution(name string, success bool, latencySeconds float64)
}
