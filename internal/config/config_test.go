package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedKeys = []string{
	"PORT", "ASK_MODE", "ASK_BASE_URL", "ASK_TIMEOUT_SECONDS",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_BASE_URL", "ARK_REGION",
	"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	"STORE_DRIVER", "STORE_PATH", "TYPEWRITER_INTERVAL_MS", "TYPEWRITER_MAX_LENGTH",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, AskConfig{Mode: AskModeHTTP, BaseURL: "http://localhost:8000", Timeout: 60 * time.Second}, cfg.Ask)
	assert.Equal(t, StoreConfig{Driver: StoreDriverSQLite, Path: "medrag-chat.db"}, cfg.Store)
	assert.Equal(t, TypewriterConfig{Interval: 15 * time.Millisecond, MaxLength: 1200}, cfg.Typewriter)
	assert.Equal(t, LogConfig{Level: "info", Format: "json"}, cfg.Log)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ASK_BASE_URL", "http://backend:8000")
	t.Setenv("ASK_TIMEOUT_SECONDS", "5")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("TYPEWRITER_INTERVAL_MS", "30")
	t.Setenv("TYPEWRITER_MAX_LENGTH", "50")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "http://backend:8000", cfg.Ask.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Ask.Timeout)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 30*time.Millisecond, cfg.Typewriter.Interval)
	assert.Equal(t, 50, cfg.Typewriter.MaxLength)
	assert.Equal(t, LogConfig{Level: "debug", Format: "console"}, cfg.Log)
}

func TestLoadLLMModeRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASK_MODE", "llm")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("ARK_MAX_TOKENS", "512")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AskModeLLM, cfg.Ask.Mode)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 512, *cfg.AI.MaxTokens)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                   "80 80",
		"ASK_MODE":               "grpc",
		"ASK_TIMEOUT_SECONDS":    "soon",
		"STORE_DRIVER":           "postgres",
		"TYPEWRITER_INTERVAL_MS": "0",
		"TYPEWRITER_MAX_LENGTH":  "-1",
		"LOG_FORMAT":             "xml",
		"ARK_TOP_P":              "high",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{APIKey: "k", Model: "m"}.Enabled())
	assert.False(t, AIConfig{AccessKey: "a", Model: "m"}.Enabled())
	assert.True(t, AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}.Enabled())
}
