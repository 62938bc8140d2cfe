// Package llm implements the model gateway: provider clients behind
// types.LLMClient, a capability-and-trust scored router, and a repair
// chain for structured output from models that cannot honor JSON schemas.
package llm

import (
	"fmt"
	"time"

	"aura/internal/config"
	"aura/internal/types"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
)

// defaultTemperature keeps structured output near-deterministic until the
// affect block dials the deliberation temperature up or down.
const defaultTemperature = 0.1

// ClientConfig holds the common provider connection settings.
type ClientConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// NewClient builds the configured provider client.
func NewClient(cfg *config.Config) (types.LLMClient, error) {
	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, err
	}
	cc := ClientConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		Timeout:   timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	}
	switch Provider(cfg.LLM.Provider) {
	case ProviderOpenAI:
		return NewOpenAIClient(cc), nil
	case ProviderOllama:
		return NewOllamaClient(cc), nil
	case ProviderGemini:
		return NewGeminiClient(cc)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// openaiMessage is one chat turn on the OpenAI-compatible wire.
type openaiMessage struct {
	Role       string              `json:"role"`
	Content    interface{}         `json:"content"` // string or []openaiContentPart
	ToolCalls  []openaiToolCallMsg `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// openaiContentPart supports mixed text/image user content.
type openaiContentPart struct {
	Type     string          `json:"type"` // "text" | "image_url"
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"` // data: URI for local images
}

// openaiRequest is the /chat/completions request body.
type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	Tools          []openaiTool          `json:"tools,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

// openaiResponseFormat enforces structured output (JSON schema).
type openaiResponseFormat struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *openaiJSONSchema `json:"json_schema,omitempty"`
}

type openaiJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// openaiTool wraps a function definition for tool calling.
type openaiTool struct {
	Type     string             `json:"type"` // "function"
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// openaiToolCallMsg is a tool invocation on the wire (arguments are a JSON
// string, not an object).
type openaiToolCallMsg struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// openaiResponse is the /chat/completions response body.
type openaiResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role      string              `json:"role"`
			Content   string              `json:"content"`
			ToolCalls []openaiToolCallMsg `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
