package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config selects and configures the generation/evaluation oracle.
type Config struct {
	// Provider is one of "anthropic", "openai", "gemini", "openrouter",
	// "mock" or "" (no oracle).
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds a single call including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig is the transient-failure policy of RetryProvider.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// EmbeddingConfig selects the embedding oracle.
type EmbeddingConfig struct {
	// Provider is "openai", "gemini", "mock" or "" (no embeddings).
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// DefaultConfig returns the OpenAI defaults the grading prompts were tuned on.
func DefaultConfig() Config {
	return Config{
		Provider:   "openai",
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "openai/gpt-4o-mini"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

// DefaultEmbeddingConfig matches text-embedding-ada-002.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
	}
}

// ConfigFromEnv overlays CODEQUIZ_* variables on DefaultConfig. When no
// provider key is set it falls back to DiscoverConfig, and finally to no
// oracle at all.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	explicit := false

	if p := os.Getenv("CODEQUIZ_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
		explicit = true
	}

	setString(&cfg.Anthropic.APIKey, "CODEQUIZ_ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "CODEQUIZ_ANTHROPIC_MODEL")
	setString(&cfg.OpenAI.APIKey, "CODEQUIZ_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "CODEQUIZ_OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "CODEQUIZ_OPENAI_BASE_URL")
	setString(&cfg.Gemini.APIKey, "CODEQUIZ_GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "CODEQUIZ_GEMINI_MODEL")
	setString(&cfg.OpenRouter.APIKey, "CODEQUIZ_OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "CODEQUIZ_OPENROUTER_MODEL")

	if v := os.Getenv("CODEQUIZ_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("CODEQUIZ_LLM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}

	if explicit || cfg.hasKey() {
		return cfg
	}
	if discovered, ok := DiscoverConfig(); ok {
		discovered.Timeout = cfg.Timeout
		discovered.Retry = cfg.Retry
		return discovered
	}
	cfg.Provider = ""
	return cfg
}

// EmbeddingConfigFromEnv reads CODEQUIZ_EMBEDDING_*. The key defaults to the
// OpenAI or Gemini key of llmCfg.
func EmbeddingConfigFromEnv(llmCfg Config) EmbeddingConfig {
	cfg := DefaultEmbeddingConfig()
	setString(&cfg.Provider, "CODEQUIZ_EMBEDDING_PROVIDER")
	setString(&cfg.Model, "CODEQUIZ_EMBEDDING_MODEL")
	setString(&cfg.APIKey, "CODEQUIZ_EMBEDDING_API_KEY")
	if v := os.Getenv("CODEQUIZ_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dimensions = n
		}
	}

	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "openai":
			cfg.APIKey = llmCfg.OpenAI.APIKey
			cfg.BaseURL = llmCfg.OpenAI.BaseURL
		case "gemini":
			cfg.APIKey = llmCfg.Gemini.APIKey
			if cfg.Model == DefaultEmbeddingConfig().Model {
				cfg.Model = "text-embedding-004"
			}
		}
	}
	if cfg.Provider != "mock" && cfg.APIKey == "" {
		cfg.Provider = ""
	}
	return cfg
}

// DiscoverConfig probes the conventional *_API_KEY variables in priority
// order (OpenAI, Anthropic, Gemini, OpenRouter).
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		cfg.Provider = "openai"
		cfg.OpenAI.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Provider = "anthropic"
		cfg.Anthropic.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		cfg.Provider = "gemini"
		cfg.Gemini.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		cfg.Provider = "openrouter"
		cfg.OpenRouter.APIKey = k
		return cfg, true
	}
	return Config{}, false
}

// Enabled reports whether an oracle is configured.
func (c Config) Enabled() bool {
	return c.Provider != ""
}

func (c Config) hasKey() bool {
	return c.Anthropic.APIKey != "" || c.OpenAI.APIKey != "" || c.Gemini.APIKey != "" || c.OpenRouter.APIKey != ""
}

// Validate checks that the selected provider has its key.
func (c Config) Validate() error {
	switch c.Provider {
	case "":
		return nil
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("CODEQUIZ_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("CODEQUIZ_OPENAI_API_KEY is required for the openai provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("CODEQUIZ_GEMINI_API_KEY is required for the gemini provider")
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("CODEQUIZ_OPENROUTER_API_KEY is required for the openrouter provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// Validate checks the embedding provider and dimensionality.
func (c EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "", "mock":
	case "openai", "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("an API key is required for the %s embedding provider", c.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding provider: %q", c.Provider)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Dimensions)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
