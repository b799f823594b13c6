package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"comfypilot/internal/logging"
)

const appName = "comfypilot"

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom loads configuration from the given file path (optional) and the environment.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			// Config file is optional
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = defaultDataDir()
	}

	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName, "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", appName, "config.yaml")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(homeDir, ".local", "share", appName)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv applies COMFYPILOT_* overrides. Malformed values are logged and ignored.
func loadFromEnv(cfg *Config) {
	if apiKey := os.Getenv("COMFYPILOT_API_KEY"); apiKey != "" {
		cfg.API.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.API.APIKey = apiKey
	}

	if provider := os.Getenv("COMFYPILOT_PROVIDER"); provider != "" {
		cfg.API.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("COMFYPILOT_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if u := os.Getenv("COMFYPILOT_OLLAMA_URL"); u != "" {
		cfg.API.OllamaBaseURL = u
	}
	if u := os.Getenv("COMFYPILOT_COMFY_URL"); u != "" {
		cfg.Comfy.BaseURL = u
	}
	if u := os.Getenv("COMFYPILOT_SEARCH_URL"); u != "" {
		cfg.Tools.SearchURL = u
	}
	if lvl := os.Getenv("COMFYPILOT_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	envInt("COMFYPILOT_SYSTEM_CONTEXT_MAX_CHARS", &cfg.Context.SystemMaxChars)
	envInt("COMFYPILOT_USER_CONTEXT_MAX_CHARS", &cfg.Context.UserMaxChars)
	envInt("COMFYPILOT_NARRATIVE_MAX_CHARS", &cfg.Context.NarrativeMaxChars)
	envInt("COMFYPILOT_MAX_RULES", &cfg.Context.MaxRules)
	envInt("COMFYPILOT_MAX_HISTORY_MESSAGES", &cfg.History.MaxMessages)
	envInt("COMFYPILOT_KEEP_TOOL_ROUNDS", &cfg.History.KeepToolRounds)
	envInt("COMFYPILOT_ROUND_CAP", &cfg.Loop.RoundCap)
	envDuration("COMFYPILOT_MODEL_TIMEOUT", &cfg.Loop.ModelTimeout)
	envDuration("COMFYPILOT_TOOL_TIMEOUT", &cfg.Tools.RemoteTimeout)
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logging.Warn("ignoring malformed environment override", "key", key, "value", raw)
		return
	}
	*dst = v
}

func envDuration(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		logging.Warn("ignoring malformed environment override", "key", key, "value", raw)
		return
	}
	*dst = v
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.API.Provider {
	case "gemini":
		if c.API.APIKey == "" {
			return ErrMissingAuth
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.API.Provider)
	}

	budgets := map[string]int{
		"context.system_max_chars":    c.Context.SystemMaxChars,
		"context.user_max_chars":      c.Context.UserMaxChars,
		"context.narrative_max_chars": c.Context.NarrativeMaxChars,
		"history.max_messages":        c.History.MaxMessages,
		"loop.round_cap":              c.Loop.RoundCap,
	}
	for name, v := range budgets {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidBudget, name, v)
		}
	}
	if c.History.KeepToolRounds < 0 {
		return fmt.Errorf("%w: history.keep_tool_rounds must not be negative", ErrInvalidBudget)
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth     ConfigError = "missing authentication: set GEMINI_API_KEY or COMFYPILOT_API_KEY, or use provider ollama"
	ErrUnknownProvider ConfigError = "unknown provider"
	ErrInvalidBudget   ConfigError = "invalid budget"
)

// GetConfigPath returns the path to the config file.
func GetConfigPath() string {
	return getConfigPath()
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return fmt.Errorf("could not determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold an API key
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
