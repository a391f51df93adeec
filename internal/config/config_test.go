package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "CODEQUIZ_") {
			t.Setenv(k, "")
		}
	}
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.87, cfg.Dedup.Threshold)
	assert.Equal(t, 5, cfg.Dedup.Limit)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 2000, cfg.Generation.MaxTokens)
	assert.Equal(t, 5, cfg.Assignment.MaxGenerationAttempts)
	assert.Equal(t, 8, cfg.Assignment.Coding)
	assert.Equal(t, 2, cfg.Assignment.Theory)
	assert.Equal(t, 10*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "codequiz.events", cfg.AMQP.Exchange)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEQUIZ_ADDR", ":9090")
	t.Setenv("CODEQUIZ_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CODEQUIZ_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("CODEQUIZ_GENERATION_ATTEMPTS", "4")
	t.Setenv("CODEQUIZ_SANDBOX_TIMEOUT", "3s")
	t.Setenv("CODEQUIZ_REDIS_ADDR", "localhost:6379")
	t.Setenv("CODEQUIZ_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0.9, cfg.Dedup.Threshold)
	assert.Equal(t, 4, cfg.Generation.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.LLM.Enabled(), "no keys means no oracle")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CODEQUIZ_AMQP_URL=amqp://localhost\nCODEQUIZ_JWT_SECRET=from-file\n"), 0o600))
	t.Setenv("CODEQUIZ_JWT_SECRET", "from-env")
	t.Cleanup(func() { os.Unsetenv("CODEQUIZ_AMQP_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "amqp://localhost", cfg.AMQP.URL)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
}

func TestLoadBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEQUIZ_DUPLICATE_LIMIT", "five")
	t.Setenv("CODEQUIZ_SANDBOX_TIMEOUT", "soon")

	_, err := Load(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CODEQUIZ_DUPLICATE_LIMIT")
	assert.Contains(t, err.Error(), "CODEQUIZ_SANDBOX_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		serving bool
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false, false},
		{"serving without secret", func(*Config) {}, true, true},
		{"serving with secret", func(c *Config) { c.Server.JWTSecret = "s" }, true, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, false, true},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, false, true},
		{"threshold zero", func(c *Config) { c.Dedup.Threshold = 0 }, false, true},
		{"threshold above one", func(c *Config) { c.Dedup.Threshold = 1.2 }, false, true},
		{"no attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }, false, true},
		{"oversized quiz", func(c *Config) { c.Quiz.DefaultQuestions = 100 }, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.LLM.Provider = ""
			cfg.Embedding.Provider = ""
			tt.mutate(&cfg)
			err := cfg.Validate(tt.serving)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
