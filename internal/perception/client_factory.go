package perception

import (
	"fmt"

	"roomcraft/internal/logging"
	"roomcraft/internal/types"
)

// NewClient creates an LLM client for the configured provider.
func NewClient(config ClientConfig) (types.LLMClient, error) {
	switch config.Provider {
	case ProviderAnthropic:
		logging.Boot("LLM client: anthropic model=%s", config.Model)
		return NewAnthropicClient(config), nil
	case ProviderGemini:
		logging.Boot("LLM client: gemini model=%s", config.Model)
		return NewGeminiClient(config), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", config.Provider)
	}
}
