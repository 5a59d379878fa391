// Package config loads the service configuration from defaults, an optional
// YAML file and RISKDRILL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/abhisek/riskdrill/internal/llm"
	"github.com/abhisek/riskdrill/internal/scoring"
	"github.com/abhisek/riskdrill/internal/session"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "RISKDRILL"

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the full service configuration.
type Config struct {
	Env       string          `mapstructure:"env" validate:"oneof=development staging production"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	// Driver selects the session store: memory, sqlite or redis. Archives
	// and telemetry go to SQLite whenever a path is configured.
	Driver string      `mapstructure:"driver" validate:"oneof=memory sqlite redis"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type SessionConfig struct {
	MaxActive            int           `mapstructure:"max_active" validate:"gte=1"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	RegenerateOnAdapt    bool          `mapstructure:"regenerate_on_adapt"`
	AdaptWindow          int           `mapstructure:"adapt_window" validate:"gte=2"`
	DefaultQuestionCount int           `mapstructure:"default_question_count" validate:"gte=1,lte=20"`
}

type ScoringConfig struct {
	Evaluator        string        `mapstructure:"evaluator" validate:"oneof=keyword llm"`
	EvaluatorTimeout time.Duration `mapstructure:"evaluator_timeout" validate:"gt=0"`
	Retries          int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	Parallelism      int           `mapstructure:"parallelism" validate:"gte=1"`
}

// LLMConfig overrides the provider settings read from the RISKDRILL_*
// provider variables. Empty values keep the provider defaults.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider" validate:"omitempty,oneof=anthropic openai gemini openrouter mock"`
	Model             string        `mapstructure:"model"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type TelemetryConfig struct {
	Buffer     int  `mapstructure:"buffer" validate:"gte=1"`
	Prometheus bool `mapstructure:"prometheus"`
	Persist    bool `mapstructure:"persist"`
}

type CatalogConfig struct {
	// Dir is an extra directory of template YAML files loaded on top of
	// the embedded seed catalog.
	Dir           string `mapstructure:"dir"`
	AllowAdjacent bool   `mapstructure:"allow_adjacent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", 24*time.Hour)

	sc := session.DefaultConfig()
	v.SetDefault("session.max_active", sc.MaxActive)
	v.SetDefault("session.idle_timeout", sc.IdleTimeout)
	v.SetDefault("session.sweep_interval", sc.SweepInterval)
	v.SetDefault("session.regenerate_on_adapt", sc.RegenerateOnAdapt)
	v.SetDefault("session.adapt_window", sc.AdaptWindow)
	v.SetDefault("session.default_question_count", sc.DefaultQuestionCount)

	sd := scoring.DefaultConfig()
	v.SetDefault("scoring.evaluator", "keyword")
	v.SetDefault("scoring.evaluator_timeout", sd.EvaluatorTimeout)
	v.SetDefault("scoring.retries", sd.EvaluatorRetries)
	v.SetDefault("scoring.parallelism", sd.Parallelism)

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.requests_per_second", 0.0)
	v.SetDefault("llm.burst", 0)
	v.SetDefault("llm.timeout", time.Duration(0))

	v.SetDefault("telemetry.buffer", 256)
	v.SetDefault("telemetry.prometheus", true)
	v.SetDefault("telemetry.persist", true)

	v.SetDefault("catalog.dir", "")
	v.SetDefault("catalog.allow_adjacent", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. An empty path skips the file and uses
// defaults and environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		return errors.New("invalid config: store.redis.addr is required for the redis driver")
	}
	if c.Session.SweepInterval > c.Session.IdleTimeout {
		return fmt.Errorf("invalid config: session.sweep_interval %s exceeds session.idle_timeout %s",
			c.Session.SweepInterval, c.Session.IdleTimeout)
	}
	if c.Scoring.Evaluator == "llm" {
		if err := c.LLMProvider().Validate(); err != nil {
			return fmt.Errorf("invalid config: llm evaluator: %w", err)
		}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// SessionConfig maps the session section onto the orchestrator config.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		MaxActive:            c.Session.MaxActive,
		IdleTimeout:          c.Session.IdleTimeout,
		SweepInterval:        c.Session.SweepInterval,
		RegenerateOnAdapt:    c.Session.RegenerateOnAdapt,
		AdaptWindow:          c.Session.AdaptWindow,
		DefaultQuestionCount: c.Session.DefaultQuestionCount,
	}
}

// ScoringConfig maps the scoring section onto the engine config.
func (c *Config) ScoringConfig() scoring.Config {
	sc := scoring.DefaultConfig()
	sc.EvaluatorTimeout = c.Scoring.EvaluatorTimeout
	sc.EvaluatorRetries = c.Scoring.Retries
	sc.Parallelism = c.Scoring.Parallelism
	return sc
}

// LLMProvider builds the provider config from the RISKDRILL_* provider
// variables and applies the overrides of the llm section.
func (c *Config) LLMProvider() llm.Config {
	lc := llm.ConfigFromEnv(c.LLM.Provider)
	if c.LLM.Model != "" {
		lc.Model = c.LLM.Model
	}
	if c.LLM.RequestsPerSecond > 0 {
		lc.RateLimit.RequestsPerSecond = c.LLM.RequestsPerSecond
	}
	if c.LLM.Burst > 0 {
		lc.RateLimit.Burst = c.LLM.Burst
	}
	if c.LLM.Timeout > 0 {
		lc.Timeout = c.LLM.Timeout
	}
	return lc
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}
