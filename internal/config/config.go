// Package config loads engine configuration from defaults, an optional YAML
// file, and environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all engine configuration.
// Priority: env vars > config file > defaults.
type Config struct {
	BaseURL        string   `yaml:"base_url" json:"base_url"`
	LoginPath      string   `yaml:"login_path" json:"login_path"`
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`
	LogLevel       string   `yaml:"log_level" json:"log_level"`
	DBPath         string   `yaml:"db_path" json:"db_path"`

	FailurePhrases  []string `yaml:"failure_phrases" json:"failure_phrases"`
	NegativeMarkers []string `yaml:"negative_markers" json:"negative_markers"`

	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Schedules  []Schedule       `yaml:"schedules" json:"schedules"`
}

// ClassifierConfig configures the optional semantic classifier. An empty
// BaseURL leaves classification fully rule-based.
type ClassifierConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
}

// BrowserConfig configures the browser automation backend process.
type BrowserConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// Schedule is one recurring suite execution.
type Schedule struct {
	Name  string   `yaml:"name" json:"name"`
	Cron  string   `yaml:"cron" json:"cron"`
	Paths []string `yaml:"paths" json:"paths"`
	Tags  string   `yaml:"tags" json:"tags"`
}

func nlstepDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nlstep"
	}
	return filepath.Join(home, ".nlstep")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LoginPath:      "/auth/login",
		RequestTimeout: Duration(30 * time.Second),
		LogLevel:       "info",
		DBPath:         filepath.Join(nlstepDir(), "nlstep.db"),
	}
}

// Load builds the configuration from defaults, the given YAML file (skipped
// when path is empty or the file is missing), and environment overrides. The
// file content is schema-validated before it is applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := validateYAML(data); err != nil {
				return cfg, err
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NLSTEP_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("NLSTEP_LOGIN_PATH"); v != "" {
		cfg.LoginPath = v
	}
	if v := os.Getenv("NLSTEP_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = Duration(d)
		}
	}
	if v := os.Getenv("NLSTEP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NLSTEP_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NLSTEP_CLASSIFIER_URL"); v != "" {
		cfg.Classifier.BaseURL = v
	}
	if v := os.Getenv("NLSTEP_CLASSIFIER_API_KEY"); v != "" {
		cfg.Classifier.APIKey = v
	}
	if v := os.Getenv("NLSTEP_CLASSIFIER_MODEL"); v != "" {
		cfg.Classifier.Model = v
	}
	if v := os.Getenv("NLSTEP_BROWSER_COMMAND"); v != "" {
		parts := strings.Fields(v)
		cfg.Browser.Command = parts[0]
		cfg.Browser.Args = parts[1:]
	}
}

// SlogLevel maps the configured level name onto slog's scale. Unknown names
// fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
