package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradeberg/tradeberg/logger"
)

// ConfigDir returns the directory holding the config file.
// Resolution order: SetConfigDir override, TRADEBERG_DIR env, ~/.tradeberg.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	if env := strings.TrimSpace(os.Getenv("TRADEBERG_DIR")); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tradeberg"), nil
}

// ConfigPath returns the full path of the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the config file, applying defaults for missing fields.
// A missing file yields the default config rather than an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config file, creating the config directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a config file is present on disk.
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WorkspacePath resolves the chat workspace directory and creates it.
func WorkspacePath(cfg *Config) (string, error) {
	ws := strings.TrimSpace(cfg.Chat.Workspace)
	if ws == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		ws = filepath.Join(dir, "workspace")
	} else if strings.HasPrefix(ws, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home dir: %w", err)
		}
		ws = filepath.Join(home, ws[1:])
	}
	if err := os.MkdirAll(ws, 0755); err != nil {
		return "", fmt.Errorf("config: create workspace: %w", err)
	}
	return ws, nil
}

// BuildLoggerConfig maps the logging section onto the logger package config.
func BuildLoggerConfig(cfg *Config) logger.Config {
	enabled := true
	if cfg.Logging.Enabled != nil {
		enabled = *cfg.Logging.Enabled
	}
	return logger.Config{
		Enabled: enabled,
		Level:   cfg.Logging.Level,
		Stdout:  cfg.Logging.Stdout,
		File:    cfg.Logging.File,
	}
}
