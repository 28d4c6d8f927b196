// Package config loads the service configuration: a YAML file for
// tunables plus environment variables for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names for the required secrets.
const (
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvFDCKey        = "FDC_API_KEY"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "15m" or "22s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`

	// Secrets come from the environment, never from the file.
	OpenRouterKey string `yaml:"-"`
	FDCKey        string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

type UpstreamConfig struct {
	OpenRouterBaseURL string        `yaml:"openrouter-base-url"`
	FDCBaseURL        string        `yaml:"fdc-base-url"`
	VisionModel       string        `yaml:"vision-model"`
	EstimatorModel    string        `yaml:"estimator-model"`
	Referer           string        `yaml:"referer"`
	Title             string        `yaml:"title"`
	VisionTimeout     Duration `yaml:"vision-timeout"`
}

type RateLimitConfig struct {
	Window      Duration `yaml:"window"`
	MaxRequests int      `yaml:"max-requests"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Upstream: UpstreamConfig{
			OpenRouterBaseURL: "https://openrouter.ai/api",
			FDCBaseURL:        "https://api.nal.usda.gov/fdc",
			VisionModel:       "openai/gpt-4o-mini",
			EstimatorModel:    "openai/gpt-4o-mini",
			Referer:           "https://mealsnap.app",
			Title:             "MealSnap",
			VisionTimeout:     Duration(22 * time.Second),
		},
		RateLimit: RateLimitConfig{
			Window:      Duration(15 * time.Minute),
			MaxRequests: 20,
		},
	}
}

// Load reads path over the defaults and pulls secrets from the
// environment. A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.OpenRouterKey = strings.TrimSpace(os.Getenv(EnvOpenRouterKey))
	cfg.FDCKey = strings.TrimSpace(os.Getenv(EnvFDCKey))
	return cfg, nil
}

// MissingSecret names the first absent required secret, or "" when both
// are present. Absence is a request-time 500, not a startup crash.
func (c *Config) MissingSecret() string {
	if c.OpenRouterKey == "" {
		return EnvOpenRouterKey
	}
	if c.FDCKey == "" {
		return EnvFDCKey
	}
	return ""
}
