package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage preorder configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > global > system > defaults

Config locations:
  - System: /etc/preorder/config.json
  - Global: ~/.config/preorder/config.json

Environment: PREORDER_BASE_URL, PREORDER_TIMEOUT, PREORDER_MAX_RETRIES,
PREORDER_RATE_LIMIT, PREORDER_DATA_DIR, PREORDER_FORMAT, PREORDER_CURRENCY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config

	keys := []struct {
		key   string
		value string
	}{
		{"base_url", cfg.BaseURL},
		{"timeout", cfg.Timeout.String()},
		{"max_retries", strconv.Itoa(cfg.MaxRetries)},
		{"rate_limit", strconv.FormatFloat(cfg.RateLimit, 'f', -1, 64)},
		{"data_dir", cfg.DataDir},
		{"format", cfg.Format},
		{"currency", cfg.Currency},
	}

	configData := make(map[string]any, len(keys))
	for _, k := range keys {
		configData[k.key] = map[string]string{
			"value":  k.value,
			"source": cfg.SourceOf(k.key),
		}
	}

	return app.OK(configData,
		output.WithSummary("Effective configuration"),
		output.WithBreadcrumbs(
			output.Breadcrumb{
				Action:      "set",
				Cmd:         "preorder config set <key> <value>",
				Description: "Set config value",
			},
		),
	)
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show where configuration and local data live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.OK(map[string]string{
				"config":  globalConfigFile(),
				"data":    app.Config.DataDir,
				"storage": credentialStorage(app.Auth.UsingKeyring()),
			}, output.WithSummary(globalConfigFile()))
		},
	}
}

func credentialStorage(keyring bool) string {
	if keyring {
		return "keyring"
	}
	return "file"
}

func globalConfigFile() string {
	return filepath.Join(config.GlobalConfigDir(), "config.json")
}

// configKeys lists the keys config set accepts.
var configKeys = []string{"base_url", "timeout", "max_retries", "rate_limit", "data_dir", "format", "currency"}

func validConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}

// configValue checks value for key and returns what is written to the file.
func configValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "base_url":
		v := config.NormalizeBaseURL(config.NormalizeHost(value))
		if v == "" {
			return nil, output.ErrUsage("base_url must not be empty")
		}
		return v, nil
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, output.ErrUsage(`timeout must be a positive duration such as "30s"`)
		}
		return d.String(), nil
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, output.ErrUsage("max_retries must be a whole number >= 0")
		}
		return n, nil
	case "rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return nil, output.ErrUsage("rate_limit must be a number >= 0")
		}
		return f, nil
	case "format":
		if _, err := output.ParseFormat(value); err != nil {
			return nil, output.ErrUsage(err.Error())
		}
		return value, nil
	case "currency":
		m := presenter.NewMoney(value, presenter.NewLocale("en"))
		if !strings.EqualFold(m.Code(), value) {
			return nil, output.ErrUsage(fmt.Sprintf("Unknown currency %q", value))
		}
		return m.Code(), nil
	default:
		return value, nil
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the global config file.

Valid keys: base_url, timeout, max_retries, rate_limit, data_dir, format, currency

Put -- before the key to pass a negative value:
  preorder config set -- max_retries -1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			key := args[0]
			if !validConfigKey(key) {
				names := append([]string(nil), configKeys...)
				sort.Strings(names)
				return output.ErrUsage(fmt.Sprintf("Invalid config key %q. Valid keys: %s", key, strings.Join(names, ", ")))
			}
			value, err := configValue(key, args[1])
			if err != nil {
				return err
			}

			configPath := globalConfigFile()
			if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData) // Ignore error - start fresh if invalid
			}
			configData[key] = value

			if err := writeConfigFile(configPath, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"key":    key,
				"value":  value,
				"path":   configPath,
				"status": "set",
			},
				output.WithSummary(fmt.Sprintf("Set %s = %v", key, value)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "show",
						Cmd:         "preorder config show",
						Description: "View config",
					},
				),
			)
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Unset a configuration value",
		Long:  "Remove a configuration value from the global config file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			key := args[0]
			configPath := globalConfigFile()

			configData := make(map[string]any)
			data, err := os.ReadFile(configPath) //nolint:gosec // G304: Path is from trusted config location
			if err != nil {
				return app.OK(map[string]any{
					"key":    key,
					"status": "not_found",
				}, output.WithSummary(fmt.Sprintf("Config file not found: %s", configPath)))
			}
			_ = json.Unmarshal(data, &configData) // Ignore error - treat as empty

			if _, exists := configData[key]; !exists {
				return app.OK(map[string]any{
					"key":    key,
					"status": "not_set",
				}, output.WithSummary(fmt.Sprintf("Key not set: %s", key)))
			}
			delete(configData, key)

			if err := writeConfigFile(configPath, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"key":    key,
				"status": "unset",
			},
				output.WithSummary(fmt.Sprintf("Unset %s", key)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "show",
						Cmd:         "preorder config show",
						Description: "View config",
					},
				),
			)
		},
	}
}

func writeConfigFile(path string, configData map[string]any) error {
	data, err := json.MarshalIndent(configData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomicWriteFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// atomicWriteFile writes data to a file atomically using temp+rename.
// Files are always created with 0600 permissions (owner read/write only).
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when the destination exists.
	if err := os.Rename(tmpPath, path); err != nil && runtime.GOOS == "windows" {
		_ = os.Remove(path)
		return os.Rename(tmpPath, path)
	} else { //nolint:revive // else-with-return kept for clarity of the two-branch pattern
		return err
	}
}
