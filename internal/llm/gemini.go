package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"aura/internal/logging"
	"aura/internal/types"
)

// GeminiClient wraps the official genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewGeminiClient creates a Gemini client. The API key falls back to the
// GEMINI_API_KEY environment variable.
func NewGeminiClient(cfg ClientConfig) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: defaultTemperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.generate(ctx, systemPrompt, userPrompt, nil, "", nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteStructured sends a prompt with a JSON response schema. Gemini
// enforces the schema server-side via ResponseSchema.
func (c *GeminiClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}, imagePath string) (string, error) {
	resp, err := c.generate(ctx, systemPrompt, userPrompt, schema, imagePath, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a prompt with tool definitions.
func (c *GeminiClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return c.generate(ctx, systemPrompt, userPrompt, nil, "", tools)
}

// SetModel changes the model used for completions.
func (c *GeminiClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// SetTemperature changes the sampling temperature for subsequent calls.
func (c *GeminiClient) SetTemperature(t float64) {
	c.temperature = t
}

func (c *GeminiClient) generate(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}, imagePath string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	logging.APIDebug("[Gemini] generate: model=%s structured=%v image=%v tools=%d", c.model, schema != nil, imagePath != "", len(tools))

	parts := []*genai.Part{{Text: userPrompt}}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			logging.APIError("[Gemini] image attach failed, sending text only: %v", err)
		} else {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: imageMIME(imagePath),
					Data:     data,
				},
			})
		}
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.maxTokens),
		Temperature:     genai.Ptr(float32(c.temperature)),
	}
	if strings.TrimSpace(systemPrompt) != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
			Role:  "user",
		}
	}
	if schema != nil {
		genCfg.ResponseSchema = toGenaiSchema(schema)
		genCfg.ResponseMIMEType = "application/json"
	}
	if len(tools) > 0 {
		for _, t := range tools {
			genCfg.Tools = append(genCfg.Tools, &genai.Tool{
				FunctionDeclarations: []*genai.FunctionDeclaration{{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toGenaiSchema(t.InputSchema),
				}},
			})
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	candidate := resp.Candidates[0]
	out := &types.LLMToolResponse{
		StopReason: string(candidate.FinishReason),
	}
	var text strings.Builder
	for i, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("gemini-call-%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    id,
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}
	out.Text = strings.TrimSpace(text.String())
	if resp.UsageMetadata != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	logging.API("[Gemini] generate: completed in %v text_len=%d tool_calls=%d", time.Since(start), len(out.Text), len(out.ToolCalls))
	return out, nil
}

// toGenaiSchema converts a JSON schema map to the SDK schema type.
func toGenaiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		s.Required = append(s.Required, required...)
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
