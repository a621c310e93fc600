package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, "auto", cfg.Format)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotNil(t, cfg.Sources)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	testConfig := map[string]any{
		"base_url":    "https://food.example.com/api/",
		"timeout":     "10s",
		"max_retries": 1,
		"rate_limit":  2.5,
		"data_dir":    "/tmp/preorder",
		"format":      "json",
		"currency":    "usd",
	}
	data, err := json.Marshal(testConfig)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	cfg := Default()
	loadFromFile(cfg, configPath, SourceGlobal)

	assert.Equal(t, "https://food.example.com/api", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.InDelta(t, 2.5, cfg.RateLimit, 0.0001)
	assert.Equal(t, "/tmp/preorder", cfg.DataDir)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "USD", cfg.Currency)

	assert.Equal(t, "global", cfg.Sources["base_url"])
	assert.Equal(t, "global", cfg.Sources["timeout"])
}

func TestLoadFromFileSkipsInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("not valid json"), 0644))

	cfg := Default()
	loadFromFile(cfg, configPath, SourceGlobal)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
}

func TestLoadFromFileSkipsMissingFile(t *testing.T) {
	cfg := Default()
	loadFromFile(cfg, "/nonexistent/path/config.json", SourceGlobal)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Empty(t, cfg.Sources)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PREORDER_BASE_URL", "https://env.example.com/")
	t.Setenv("PREORDER_TIMEOUT", "5s")
	t.Setenv("PREORDER_MAX_RETRIES", "0")
	t.Setenv("PREORDER_DATA_DIR", "/tmp/env-data")
	t.Setenv("PREORDER_CURRENCY", "eur")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, "/tmp/env-data", cfg.DataDir)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "env", cfg.Sources["base_url"])
}

func TestLoadFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("PREORDER_TIMEOUT", "soon")
	t.Setenv("PREORDER_MAX_RETRIES", "-2")
	t.Setenv("PREORDER_RATE_LIMIT", "fast")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Zero(t, cfg.RateLimit)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	ApplyOverrides(cfg, FlagOverrides{
		Host:    "localhost:8080/api",
		DataDir: "/tmp/flag-data",
		Format:  "json",
	})

	assert.Equal(t, "http://localhost:8080/api", cfg.BaseURL)
	assert.Equal(t, "/tmp/flag-data", cfg.DataDir)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "flag", cfg.SourceOf("base_url"))
	assert.Equal(t, "default", cfg.SourceOf("currency"))
}

func TestPrecedenceFlagsOverEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PREORDER_BASE_URL", "https://env.example.com")

	cfg, err := Load(FlagOverrides{Host: "flag.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.BaseURL)
	assert.Equal(t, "flag", cfg.Sources["base_url"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, true},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://x" }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"localhost:8080", "http://localhost:8080"},
		{"127.0.0.1:3000/api", "http://127.0.0.1:3000/api"},
		{"app.localhost", "http://app.localhost"},
		{"[::1]:8080", "http://[::1]:8080"},
		{"food.example.com", "https://food.example.com"},
		{"http://food.example.com", "http://food.example.com"},
		{"https://food.example.com/api", "https://food.example.com/api"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHost(tt.input))
		})
	}
}

func TestGlobalConfigDirRespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/preorder", GlobalConfigDir())
}
