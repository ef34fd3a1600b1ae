package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomcraft/internal/logging"
	"roomcraft/internal/types"
)

// AnthropicClient implements LLMClient for the direct Anthropic API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) ClientConfig {
	return ClientConfig{
		Provider: ProviderAnthropic,
		APIKey:   apiKey,
		BaseURL:  "https://api.anthropic.com/v1",
		Model:    "claude-sonnet-4-5",
		Timeout:  2 * time.Minute,
	}
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(config ClientConfig) *AnthropicClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	return &AnthropicClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Complete sends a prompt and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, systemPrompt, []types.Message{{Role: "user", Text: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a conversation with tool definitions and returns
// the model's response with any tool calls.
func (c *AnthropicClient) CompleteWithTools(ctx context.Context, systemPrompt string, messages []types.Message, toolDefs []ToolDefinition) (*types.LLMToolResponse, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Anthropic] CompleteWithTools: model=%s tools=%d messages=%d",
		c.model, len(toolDefs), len(messages))

	if c.apiKey == "" {
		logging.APIError("[Anthropic] CompleteWithTools: API key not configured")
		return nil, fmt.Errorf("API key not configured")
	}

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	anthropicTools := make([]AnthropicTool, len(toolDefs))
	for i, t := range toolDefs {
		anthropicTools[i] = AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}

	reqBody := AnthropicRequest{
		Model:       c.model,
		MaxTokens:   8192,
		System:      systemPrompt,
		Messages:    toAnthropicMessages(messages),
		Tools:       anthropicTools,
		Temperature: 0.1,
	}

	// Retry loop for rate limits and transient errors
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			logging.APIError("[Anthropic] attempt %d failed: %v", i+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			logging.APIError("[Anthropic] attempt %d: status %d", i+1, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var anthropicResp AnthropicResponse
		if err := json.Unmarshal(body, &anthropicResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if anthropicResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", anthropicResp.Error.Message)
		}

		result := &types.LLMToolResponse{
			StopReason: anthropicResp.StopReason,
			Usage: types.UsageMetadata{
				InputTokens:  anthropicResp.Usage.InputTokens,
				OutputTokens: anthropicResp.Usage.OutputTokens,
				TotalTokens:  anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
			},
		}

		var textBuilder strings.Builder
		for _, block := range anthropicResp.Content {
			switch block.Type {
			case "text":
				textBuilder.WriteString(block.Text)
			case "tool_use":
				result.ToolCalls = append(result.ToolCalls, types.ToolCall{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				})
			}
		}
		result.Text = strings.TrimSpace(textBuilder.String())

		logging.API("[Anthropic] CompleteWithTools: completed in %v text_len=%d tool_calls=%d stop_reason=%s",
			time.Since(startTime), len(result.Text), len(result.ToolCalls), result.StopReason)

		return result, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// toAnthropicMessages converts the provider-neutral conversation into
// Anthropic content blocks.
func toAnthropicMessages(messages []types.Message) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(messages))
	for _, m := range messages {
		switch {
		case len(m.ToolCalls) > 0:
			blocks := make([]AnthropicContentBlock, 0, len(m.ToolCalls)+1)
			if m.Text != "" {
				blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, AnthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Input,
				})
			}
			out = append(out, AnthropicMessage{Role: "assistant", Content: blocks})
		case len(m.ToolResults) > 0:
			blocks := make([]AnthropicContentBlock, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				blocks = append(blocks, AnthropicContentBlock{
					Type:      "tool_result",
					ToolUseID: tr.ToolUseID,
					Content:   tr.Content,
					IsError:   tr.IsError,
				})
			}
			out = append(out, AnthropicMessage{Role: "user", Content: blocks})
		default:
			out = append(out, AnthropicMessage{Role: m.Role, Content: m.Text})
		}
	}
	return out
}

// SetModel changes the model used for completions.
func (c *AnthropicClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string {
	return c.model
}
