package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/codequiz/internal/store"
)

// NewProvider builds the configured oracle wrapped as
// caller → retry → logging → base. It returns (nil, nil) when no provider
// is configured; callers then use their no-oracle fallbacks.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, logger *slog.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, eventRepo, logger)
	return withTimeout(WithRetry(logged, cfg.Retry), cfg.Timeout), nil
}

// timeoutProvider bounds each Generate call, retries included.
type timeoutProvider struct {
	Provider
	timeout time.Duration
}

func withTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{Provider: p, timeout: d}
}

func (t *timeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Provider.Generate(ctx, req)
}
