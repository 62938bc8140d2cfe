package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"aura/internal/logging"
	"aura/internal/types"
)

// OllamaClient speaks the native Ollama /api/chat protocol. Structured output
// uses the format field, which constrains generation server-side and works on
// local models that ignore prompt-level schema instructions.
type OllamaClient struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOllamaClient creates a client against a local or remote Ollama daemon.
func NewOllamaClient(cfg ClientConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaClient{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: defaultTemperature,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64, no data: prefix
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaChatMessage    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   json.RawMessage        `json:"format,omitempty"` // "json" or a schema object
	Options  map[string]interface{} `json:"options,omitempty"`
	Tools    []openaiTool           `json:"tools,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat(ctx, c.messages(systemPrompt, userPrompt, ""), nil, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteStructured sends a prompt constrained by a JSON schema.
func (c *OllamaClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}, imagePath string) (string, error) {
	var format json.RawMessage
	if schema != nil {
		raw, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema: %w", err)
		}
		format = raw
	}
	resp, err := c.chat(ctx, c.messages(systemPrompt, userPrompt, imagePath), format, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a prompt with tool definitions. Ollama reuses the
// OpenAI function-tool shape.
func (c *OllamaClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	wireTools := make([]openaiTool, 0, len(tools))
	for _, t := range tools {
		wireTools = append(wireTools, openaiTool{
			Type: "function",
			Function: openaiToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return c.chat(ctx, c.messages(systemPrompt, userPrompt, ""), nil, wireTools)
}

// SetModel changes the model used for completions.
func (c *OllamaClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// SetTemperature changes the sampling temperature for subsequent calls.
func (c *OllamaClient) SetTemperature(t float64) {
	c.temperature = t
}

func (c *OllamaClient) messages(systemPrompt, userPrompt, imagePath string) []ollamaChatMessage {
	var msgs []ollamaChatMessage
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	user := ollamaChatMessage{Role: "user", Content: userPrompt}
	if imagePath != "" {
		if data, err := os.ReadFile(imagePath); err == nil {
			user.Images = []string{base64.StdEncoding.EncodeToString(data)}
		} else {
			logging.APIError("[Ollama] image attach failed, sending text only: %v", err)
		}
	}
	return append(msgs, user)
}

func (c *OllamaClient) chat(ctx context.Context, msgs []ollamaChatMessage, format json.RawMessage, tools []openaiTool) (*types.LLMToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.APIDebug("[Ollama] chat: model=%s messages=%d structured=%v tools=%d", c.model, len(msgs), format != nil, len(tools))

	reqBody := ollamaChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Format:   format,
		Tools:    tools,
		Options: map[string]interface{}{
			"temperature": c.temperature,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama unreachable at %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", parsed.Error)
	}

	out := &types.LLMToolResponse{
		Text:       strings.TrimSpace(parsed.Message.Content),
		StopReason: parsed.DoneReason,
		Usage: types.UsageMetadata{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
			TotalTokens:  parsed.PromptEvalCount + parsed.EvalCount,
		},
	}
	for i, tc := range parsed.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:    fmt.Sprintf("ollama-call-%d", i),
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	logging.API("[Ollama] chat: completed in %v text_len=%d tool_calls=%d", time.Since(start), len(out.Text), len(out.ToolCalls))
	return out, nil
}
