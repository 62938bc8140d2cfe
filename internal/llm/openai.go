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
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aura/internal/logging"
	"aura/internal/types"
)

// OpenAIClient speaks the OpenAI chat-completions wire format. It also serves
// any OpenAI-compatible gateway (OpenRouter, vLLM, llama.cpp server) via
// BaseURL.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: defaultTemperature,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := c.baseRequest(systemPrompt, userPrompt, nil)
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteStructured sends a prompt with a JSON schema constraint. If the
// provider rejects response_format the schema is folded into the system
// prompt and the raw reply returned for the repair chain.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}, imagePath string) (string, error) {
	req := c.baseRequest(systemPrompt, userPrompt, nil)
	if schema != nil {
		req.ResponseFormat = &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiJSONSchema{
				Name:   "response",
				Strict: true,
				Schema: schema,
			},
		}
	}

	if imagePath != "" {
		part, err := imageContentPart(imagePath)
		if err != nil {
			logging.APIError("[OpenAI] image attach failed, sending text only: %v", err)
		} else {
			last := len(req.Messages) - 1
			req.Messages[last].Content = []openaiContentPart{
				{Type: "text", Text: userPrompt},
				*part,
			}
		}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a prompt with tool definitions.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
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
	req := c.baseRequest(systemPrompt, userPrompt, wireTools)
	return c.send(ctx, req)
}

// SetModel changes the model used for completions.
func (c *OpenAIClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetTemperature changes the sampling temperature for subsequent calls.
func (c *OpenAIClient) SetTemperature(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temperature = t
}

func (c *OpenAIClient) getTemperature() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temperature
}

func (c *OpenAIClient) baseRequest(systemPrompt, userPrompt string, tools []openaiTool) openaiRequest {
	messages := []openaiMessage{}
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: userPrompt})
	return openaiRequest{
		Model:       c.GetModel(),
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.getTemperature(),
		Tools:       tools,
	}
}

// send posts the request with rate-limit pacing and bounded retries.
func (c *OpenAIClient) send(ctx context.Context, reqBody openaiRequest) (*types.LLMToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.APIDebug("[OpenAI] send: model=%s messages=%d tools=%d", reqBody.Model, len(reqBody.Messages), len(reqBody.Tools))

	// Pace requests; 100ms floor between calls.
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	maxRetries := 3
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			// Some gateways reject response_format; retry once without it and
			// let the repair chain recover the JSON.
			if reqBody.ResponseFormat != nil && resp.StatusCode == http.StatusBadRequest {
				bodyStr := string(body)
				if strings.Contains(bodyStr, "response_format") || strings.Contains(bodyStr, "json_schema") {
					reqBody.ResponseFormat = nil
					lastErr = fmt.Errorf("provider rejected structured output: %s", bodyStr)
					continue
				}
			}
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed openaiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		choice := parsed.Choices[0]
		out := &types.LLMToolResponse{
			Text:       strings.TrimSpace(choice.Message.Content),
			StopReason: choice.FinishReason,
		}
		for _, tc := range choice.Message.ToolCalls {
			input := map[string]interface{}{}
			if tc.Function.Arguments != "" {
				// Malformed arguments become an empty input; the controller
				// treats that as a failed observation, not a crash.
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
		if parsed.Usage != nil {
			out.Usage = types.UsageMetadata{
				InputTokens:  parsed.Usage.PromptTokens,
				OutputTokens: parsed.Usage.CompletionTokens,
				TotalTokens:  parsed.Usage.TotalTokens,
			}
		}
		logging.API("[OpenAI] send: completed in %v text_len=%d tool_calls=%d", time.Since(start), len(out.Text), len(out.ToolCalls))
		return out, nil
	}

	logging.APIError("[OpenAI] send: max retries exceeded after %v: %v", time.Since(start), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// imageContentPart loads a local image as a data URI content part.
func imageContentPart(path string) (*openaiContentPart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".gif":
		mime = "image/gif"
	case ".webp":
		mime = "image/webp"
	}
	return &openaiContentPart{
		Type: "image_url",
		ImageURL: &openaiImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		},
	}, nil
}
