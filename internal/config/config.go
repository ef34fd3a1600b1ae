package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all roomcraft configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Orchestrator settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Capability execution settings
	Capability CapabilityConfig `yaml:"capability"`

	// Persistence configuration
	Persistence PersistenceConfig `yaml:"persistence"`

	// Integration services
	Integrations IntegrationsConfig `yaml:"integrations"`

	// HTTP gateway
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the scene-agent provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// OrchestratorConfig bounds the tool-calling loop.
type OrchestratorConfig struct {
	// Maximum provider round-trips per user turn
	MaxRounds int `yaml:"max_rounds"`
}

// CapabilityConfig configures sandboxed snippet execution.
type CapabilityConfig struct {
	// Per-execution wall-clock budget
	Timeout string `yaml:"timeout"`
}

// PersistenceConfig configures the SQLite store.
type PersistenceConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Trailing-edge debounce window for scene saves
	SaveDebounce string `yaml:"save_debounce"`
}

// IntegrationsConfig configures external service integrations.
type IntegrationsConfig struct {
	// Image generation service
	ImageGen ImageGenIntegration `yaml:"image_gen"`

	// Music control service
	Music MusicIntegration `yaml:"music"`
}

// ImageGenIntegration configures the image generation service.
type ImageGenIntegration struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// MusicIntegration configures the music control service.
type MusicIntegration struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the categorized file logger. The logging package
// reads this same section of .roomcraft/config.yaml directly, so the field
// names here must stay in step with what it parses.
type LoggingConfig struct {
	// Debug mode enables file logging; off means no logs at all
	DebugMode bool `yaml:"debug_mode"`

	// Per-category switches; absent categories default to enabled
	Categories map[string]bool `yaml:"categories"`

	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "roomcraft",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Timeout:  "120s",
		},

		Orchestrator: OrchestratorConfig{
			MaxRounds: 8,
		},

		Capability: CapabilityConfig{
			Timeout: "3s",
		},

		Persistence: PersistenceConfig{
			DatabasePath: ".roomcraft/roomcraft.db",
			SaveDebounce: "1500ms",
		},

		Integrations: IntegrationsConfig{
			ImageGen: ImageGenIntegration{
				Enabled: false,
				Timeout: "60s",
			},
			Music: MusicIntegration{
				Enabled: false,
				Timeout: "10s",
			},
		},

		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "gemini":
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.Orchestrator.MaxRounds <= 0 {
		return fmt.Errorf("orchestrator max_rounds must be positive, got %d", c.Orchestrator.MaxRounds)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("ROOMCRAFT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("ROOMCRAFT_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("ROOMCRAFT_MODEL"); model != "" {
		c.LLM.Model = model
	}

	// Integration URLs from environment
	if url := os.Getenv("ROOMCRAFT_IMAGEGEN_URL"); url != "" {
		c.Integrations.ImageGen.BaseURL = url
		c.Integrations.ImageGen.Enabled = true
	}
	if key := os.Getenv("ROOMCRAFT_IMAGEGEN_KEY"); key != "" {
		c.Integrations.ImageGen.APIKey = key
	}
	if url := os.Getenv("ROOMCRAFT_MUSIC_URL"); url != "" {
		c.Integrations.Music.BaseURL = url
		c.Integrations.Music.Enabled = true
	}

	// Database path from environment
	if path := os.Getenv("ROOMCRAFT_DB"); path != "" {
		c.Persistence.DatabasePath = path
	}

	if port := os.Getenv("ROOMCRAFT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// GetLLMTimeout returns the provider timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCapabilityTimeout returns the snippet execution budget as a duration.
func (c *Config) GetCapabilityTimeout() time.Duration {
	d, err := time.ParseDuration(c.Capability.Timeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetSaveDebounce returns the scene save debounce window as a duration.
func (c *Config) GetSaveDebounce() time.Duration {
	d, err := time.ParseDuration(c.Persistence.SaveDebounce)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// GetImageGenTimeout returns the image generation timeout as a duration.
func (c *Config) GetImageGenTimeout() time.Duration {
	d, err := time.ParseDuration(c.Integrations.ImageGen.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetMusicTimeout returns the music service timeout as a duration.
func (c *Config) GetMusicTimeout() time.Duration {
	d, err := time.ParseDuration(c.Integrations.Music.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ListenAddr returns the host:port address for the HTTP gateway.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
