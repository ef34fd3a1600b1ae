// Package integrations holds the narrow HTTP clients for external
// collaborator services: content generation and music control. Collaborators
// are best-effort; a failure here is reported to the caller as an error and
// never retried within the same invocation.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"roomcraft/internal/logging"
)

// ImageGenerator is the interface the orchestration loop uses to obtain
// generated images. Implementations return a URL or fail.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPImageGenerator calls a configured image-generation endpoint.
type HTTPImageGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPImageGenerator creates a generator client. baseURL must point at a
// service accepting POST /generate {"prompt": ...} and answering
// {"url": ...}.
func NewHTTPImageGenerator(baseURL, apiKey string, timeout time.Duration) *HTTPImageGenerator {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &HTTPImageGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Generate requests an image for the prompt and returns its URL.
func (g *HTTPImageGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.baseURL == "" {
		return "", ErrNotConfigured
	}

	start := time.Now()
	logging.Integrations("image generation requested prompt_len=%d", len(prompt))

	jsonData, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		logging.IntegrationsError("image generation failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(body))
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if gr.Error != "" {
		return "", fmt.Errorf("generation service error: %s", gr.Error)
	}
	if gr.URL == "" {
		return "", fmt.Errorf("generation service returned no URL")
	}

	logging.Integrations("image generated in %v", time.Since(start))
	return gr.URL, nil
}
