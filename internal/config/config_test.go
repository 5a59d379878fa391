package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskdrill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "keyword", cfg.Scoring.Evaluator)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 256, cfg.Telemetry.Buffer)
	assert.False(t, cfg.Production())

	sc := cfg.SessionConfig()
	require.NoError(t, sc.Validate())
	assert.Equal(t, 1000, sc.MaxActive)
	require.NoError(t, cfg.ScoringConfig().Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
env: staging
server:
  addr: ":9090"
store:
  driver: redis
  redis:
    addr: "redis:6379"
    ttl: 2h
session:
  max_active: 50
  idle_timeout: 10m
  regenerate_on_adapt: true
log:
  format: json
`)
	t.Setenv("RISKDRILL_SESSION_MAX_ACTIVE", "75")
	t.Setenv("RISKDRILL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Env)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, 75, cfg.Session.MaxActive, "env overrides file")
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.True(t, cfg.SessionConfig().RegenerateOnAdapt)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad env", func(c *Config) { c.Env = "qa" }, "env"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"redis without addr", func(c *Config) {
			c.Store.Driver = "redis"
			c.Store.Redis.Addr = ""
		}, "store.redis.addr"},
		{"too many questions", func(c *Config) { c.Session.DefaultQuestionCount = 50 }, "session.default_question_count"},
		{"sweep slower than idle", func(c *Config) { c.Session.SweepInterval = time.Hour }, "sweep_interval"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"llm evaluator with mock", func(c *Config) {
			c.Scoring.Evaluator = "llm"
			c.LLM.Provider = "mock"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLLMProviderOverrides(t *testing.T) {
	t.Setenv("RISKDRILL_LLM_PROVIDER", "openai")
	t.Setenv("RISKDRILL_OPENAI_API_KEY", "sk-test")

	cfg := Default()
	cfg.LLM.Model = "gpt-4.1-mini"
	cfg.LLM.RequestsPerSecond = 5
	cfg.LLM.Timeout = 5 * time.Second

	lc := cfg.LLMProvider()
	assert.Equal(t, "openai", lc.Provider)
	assert.Equal(t, "gpt-4.1-mini", lc.Model)
	assert.Equal(t, "sk-test", lc.APIKey)
	assert.Equal(t, 5.0, lc.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5*time.Second, lc.Timeout)
	require.NoError(t, lc.Validate())
}

func TestLLMProviderSectionWinsOverEnv(t *testing.T) {
	t.Setenv("RISKDRILL_LLM_PROVIDER", "openai")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg := Default()
	cfg.LLM.Provider = "gemini"

	lc := cfg.LLMProvider()
	assert.Equal(t, "gemini", lc.Provider)
	assert.Equal(t, "g-test", lc.APIKey)
}
