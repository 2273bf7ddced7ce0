package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config holds the global myshell configuration.
type Config struct {
	Prompt string      `yaml:"prompt"`
	Color  bool        `yaml:"color"`
	Log    LogConfig   `yaml:"log"`
	Audit  AuditConfig `yaml:"audit"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// AuditConfig controls the executed-line audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// DefaultPrompt matches the classic minimal shell prompt.
const DefaultPrompt = "$ "

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Prompt: DefaultPrompt,
		Color:  true,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    filepath.Join(home, ".local", "share", "myshell", "audit.jsonl"),
		},
	}
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "myshell", "config.yaml")
}

// Load reads the config from the standard location (~/.config/myshell/config.yaml).
// If the file doesn't exist, returns the default config.
func Load() (*Config, error) {
	return LoadFrom(afero.NewOsFs(), ConfigPath())
}

// LoadFrom reads the config from path on fsys.
func LoadFrom(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Expand ~ in audit path.
	if strings.HasPrefix(cfg.Audit.Path, "~") {
		home, _ := os.UserHomeDir()
		cfg.Audit.Path = filepath.Join(home, cfg.Audit.Path[1:])
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate the configuration for basic semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate.Struct(c)
}
