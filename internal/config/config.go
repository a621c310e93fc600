// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"-"`
	MaxRetries int           `json:"max_retries"`
	RateLimit  float64       `json:"rate_limit"` // requests per second, 0 = unlimited

	// Local state (cart, credential fallback file)
	DataDir string `json:"data_dir"`

	// Presentation
	Format   string `json:"format"`
	Currency string `json:"currency"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	Host    string
	DataDir string
	Format  string
}

const (
	DefaultBaseURL    = "http://localhost:8080/api"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultCurrency   = "INR"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		DataDir:    defaultDataDir(),
		Format:     "auto",
		Currency:   DefaultCurrency,
		Sources:    make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	LoadFromEnv(cfg)

	ApplyOverrides(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be repaired silently.
func (cfg *Config) Validate() error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://: %q", cfg.BaseURL)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0, got %v", cfg.RateLimit)
	}
	return nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		cfg.BaseURL = NormalizeBaseURL(v)
		cfg.Sources["base_url"] = string(source)
	}
	if v, ok := fileCfg["timeout"].(string); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		} else {
			fmt.Fprintf(os.Stderr, "warning: ignoring invalid timeout %q in %s\n", v, path)
		}
	}
	if v, ok := fileCfg["max_retries"].(float64); ok && v >= 0 {
		cfg.MaxRetries = int(v)
		cfg.Sources["max_retries"] = string(source)
	}
	if v, ok := fileCfg["rate_limit"].(float64); ok && v >= 0 {
		cfg.RateLimit = v
		cfg.Sources["rate_limit"] = string(source)
	}
	if v, ok := fileCfg["data_dir"].(string); ok && v != "" {
		cfg.DataDir = v
		cfg.Sources["data_dir"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if v, ok := fileCfg["currency"].(string); ok && v != "" {
		cfg.Currency = strings.ToUpper(v)
		cfg.Sources["currency"] = string(source)
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PREORDER_BASE_URL"); v != "" {
		cfg.BaseURL = NormalizeBaseURL(v)
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("PREORDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("PREORDER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
			cfg.Sources["max_retries"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("PREORDER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.RateLimit = f
			cfg.Sources["rate_limit"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("PREORDER_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.Sources["data_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("PREORDER_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
	if v := os.Getenv("PREORDER_CURRENCY"); v != "" {
		cfg.Currency = strings.ToUpper(v)
		cfg.Sources["currency"] = string(SourceEnv)
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.Host != "" {
		cfg.BaseURL = NormalizeBaseURL(NormalizeHost(o.Host))
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		cfg.Sources["data_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// SourceOf returns where key was set, or "default".
func (cfg *Config) SourceOf(key string) string {
	if s, ok := cfg.Sources[key]; ok {
		return s
	}
	return string(SourceDefault)
}

// Path helpers

func systemConfigPath() string {
	return "/etc/preorder/config.json"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "preorder")
}

func defaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "preorder")
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}

// NormalizeHost converts a --host value to a full URL.
// Bare localhost addresses default to http://, other bare hosts to https://.
func NormalizeHost(host string) string {
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if isLocalhost(host) {
		return "http://" + host
	}
	return "https://" + host
}

func isLocalhost(host string) bool {
	// Strip path and port
	if idx := strings.IndexByte(host, '/'); idx != -1 {
		host = host[:idx]
	}
	if strings.HasPrefix(host, "[::1]") {
		return true
	}
	if idx := strings.LastIndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "127.0.0.1"
}
