package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Providers lists the accepted values of Config.Provider, in the order
// ConfigFromEnv looks for their keys.
var Providers = []string{"anthropic", "openai", "gemini", "openrouter", "mock"}

// Config selects one grading model and how requests to it are paced.
type Config struct {
	// Provider is one of Providers.
	Provider string
	APIKey   string
	// Model is an alias from the model table or a raw vendor id. Empty picks
	// the provider default.
	Model string
	// BaseURL overrides the vendor endpoint, e.g. for a proxy.
	BaseURL string

	Retry     RetryConfig
	RateLimit RateLimitConfig

	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// RetryConfig configures retries of transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// RateLimitConfig caps outgoing request rate. A zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		Provider: "anthropic",
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Timeout: 30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from the environment. provider wins over
// RISKDRILL_LLM_PROVIDER; with neither set, the first provider whose key is
// present is picked. The key is read from RISKDRILL_LLM_API_KEY, then
// RISKDRILL_<PROVIDER>_API_KEY, then the vendor's own <PROVIDER>_API_KEY.
func ConfigFromEnv(provider string) Config {
	cfg := DefaultConfig()

	switch {
	case provider != "":
		cfg.Provider = provider
	case os.Getenv("RISKDRILL_LLM_PROVIDER") != "":
		cfg.Provider = os.Getenv("RISKDRILL_LLM_PROVIDER")
	default:
		for _, p := range Providers {
			if providerKey(p) != "" {
				cfg.Provider = p
				break
			}
		}
	}

	cfg.APIKey = os.Getenv("RISKDRILL_LLM_API_KEY")
	if cfg.APIKey == "" {
		cfg.APIKey = providerKey(cfg.Provider)
	}
	cfg.Model = os.Getenv("RISKDRILL_LLM_MODEL")
	cfg.BaseURL = os.Getenv("RISKDRILL_LLM_BASE_URL")

	if r := os.Getenv("RISKDRILL_LLM_RPS"); r != "" {
		if v, err := strconv.ParseFloat(r, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = v
		}
	}
	return cfg
}

func providerKey(provider string) string {
	if provider == "mock" {
		return ""
	}
	name := strings.ToUpper(provider) + "_API_KEY"
	if k := os.Getenv("RISKDRILL_" + name); k != "" {
		return k
	}
	return os.Getenv(name)
}

// Validate checks that the selected provider is known and has a key.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "gemini", "openrouter":
		if c.APIKey == "" {
			return fmt.Errorf("an API key is required for the %s provider (RISKDRILL_LLM_API_KEY or %s_API_KEY)",
				c.Provider, strings.ToUpper(c.Provider))
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("llm rate limit must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("llm retry attempts must not be negative")
	}
	return nil
}
