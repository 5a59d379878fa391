package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/riskdrill/internal/telemetry"
)

// NewProvider creates the Provider described by cfg, wrapped with retry,
// rate limiting and event reporting.
func NewProvider(ctx context.Context, cfg Config, sink telemetry.Sink) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg)
	case "openai":
		base, err = NewOpenAIProvider(cfg)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg)
	case "mock":
		return WithLogging(NewMockProvider(), sink), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// caller → retry → rate limit → logging → base
	logged := WithLogging(base, sink)
	limited := WithRateLimit(logged, cfg.RateLimit)
	return WithRetry(limited, cfg.Retry), nil
}
