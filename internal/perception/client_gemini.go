package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"roomcraft/internal/logging"
	"roomcraft/internal/types"
)

// GeminiClient implements LLMClient for the Gemini REST API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(config ClientConfig) *GeminiClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	return &GeminiClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, systemPrompt, []types.Message{{Role: "user", Text: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a conversation with tool definitions and returns
// the model's response with any tool calls.
func (c *GeminiClient) CompleteWithTools(ctx context.Context, systemPrompt string, messages []types.Message, toolDefs []ToolDefinition) (*types.LLMToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] CompleteWithTools: model=%s tools=%d messages=%d",
		c.model, len(toolDefs), len(messages))

	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	reqBody := GeminiRequest{
		Contents: toGeminiContents(messages),
		SystemInstruction: &GeminiContent{
			Parts: []GeminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 8192,
		},
	}
	if len(toolDefs) > 0 {
		decls := make([]GeminiFunctionDeclaration, len(toolDefs))
		for i, t := range toolDefs {
			decls[i] = GeminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		reqBody.Tools = []GeminiTool{{FunctionDeclarations: decls}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.APIError("[Gemini] request failed after %v: %v", time.Since(startTime), err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.APIError("[Gemini] status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if geminiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := geminiResp.Candidates[0]
	result := &types.LLMToolResponse{
		StopReason: candidate.FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  geminiResp.UsageMetadata.TotalTokenCount,
		},
	}

	var textBuilder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			textBuilder.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			// Gemini does not assign call ids; mint one so tool results can
			// be correlated the same way as with Anthropic.
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    uuid.NewString(),
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		}
	}
	result.Text = strings.TrimSpace(textBuilder.String())
	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	}

	logging.API("[Gemini] CompleteWithTools: completed in %v text_len=%d tool_calls=%d",
		time.Since(startTime), len(result.Text), len(result.ToolCalls))

	return result, nil
}

// toGeminiContents converts the provider-neutral conversation into Gemini
// content entries. Tool results become functionResponse parts; the result
// content rides in a generic "result" field. Gemini correlates function
// responses by function name rather than call id, so the response name is the
// tool's name, falling back to the name of the call it answers.
func toGeminiContents(messages []types.Message) []GeminiContent {
	out := make([]GeminiContent, 0, len(messages))
	callNames := make(map[string]string)
	for _, m := range messages {
		switch {
		case len(m.ToolCalls) > 0:
			parts := make([]GeminiPart, 0, len(m.ToolCalls)+1)
			if m.Text != "" {
				parts = append(parts, GeminiPart{Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, GeminiPart{
					FunctionCall: &GeminiFunctionCall{Name: tc.Name, Args: tc.Input},
				})
			}
			out = append(out, GeminiContent{Role: "model", Parts: parts})
		case len(m.ToolResults) > 0:
			parts := make([]GeminiPart, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				name := tr.Name
				if name == "" {
					name = callNames[tr.ToolUseID]
				}
				parts = append(parts, GeminiPart{
					FunctionResponse: &GeminiFunctionResponse{
						Name: name,
						Response: map[string]interface{}{
							"result":   tr.Content,
							"is_error": tr.IsError,
						},
					},
				})
			}
			out = append(out, GeminiContent{Role: "user", Parts: parts})
		default:
			role := "user"
			if m.Role == "assistant" {
				role = "model"
			}
			out = append(out, GeminiContent{Role: role, Parts: []GeminiPart{{Text: m.Text}}})
		}
	}
	return out
}

// SetModel changes the model used for completions.
func (c *GeminiClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}
