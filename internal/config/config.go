// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config resolves CLI settings from flags, PRECINCT_* environment
// variables and an optional YAML file in the XDG config dir, in that order of
// precedence. Only non-secret settings live here; secrets go to the OS
// keychain or a parameter store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/xdg"
)

// EnvPrefix prefixes every environment variable, e.g. PRECINCT_MODEL.
const EnvPrefix = "PRECINCT"

// Keys shared by flags, environment and the config file.
const (
	KeyModel             = "model"
	KeyProvider          = "provider"
	KeyBaseURL           = "base-url"
	KeyLogLevel          = "log-level"
	KeyRowLimit          = "limit"
	KeyMaxClarifications = "max-clarifications"
	KeyOptimizeAttempts  = "optimize-attempts"
	KeyModelRetries      = "model-retries"
	KeyModelTimeout      = "model-timeout"
	KeyDiagnosticTimeout = "diagnostic-timeout"
	KeyHistory           = "history"
	KeyAPIKeyParam       = "api-key-param"
	KeyAWSRegion         = "aws-region"
	KeyMetricsFile       = "metrics-file"
	KeyPromptsFile       = "prompts-file"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	Model    string
	Provider string
	BaseURL  string
	LogLevel string
	// RowLimit caps the preview shown after running the optimized query.
	RowLimit int
	// MaxClarifications caps intent corrections per session.
	MaxClarifications int
	// OptimizeAttempts bounds the validate-and-retry loop of the optimizer.
	OptimizeAttempts int
	// ModelRetries bounds retries of a single model call on transient errors.
	ModelRetries      int
	ModelTimeout      time.Duration
	DiagnosticTimeout time.Duration
	History           bool
	// APIKeyParam names an AWS SSM parameter holding the model API key.
	APIKeyParam string
	AWSRegion   string
	MetricsFile string
	// PromptsFile overrides the built-in model prompts.
	PromptsFile string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, "gpt-4o")
	v.SetDefault(KeyProvider, "auto")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyRowLimit, 20)
	v.SetDefault(KeyMaxClarifications, 10)
	v.SetDefault(KeyOptimizeAttempts, 3)
	v.SetDefault(KeyModelRetries, 3)
	v.SetDefault(KeyModelTimeout, 60*time.Second)
	v.SetDefault(KeyDiagnosticTimeout, 30*time.Second)
	v.SetDefault(KeyHistory, true)
}

// Load reads the config file (explicit path, or config.yaml in the XDG
// config dir when present), binds the environment and decodes v.
// Flags must already be bound to v.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file == "" {
		if dir, err := xdg.ConfigDir(); err == nil {
			candidate := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				file = candidate
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, apperrors.Wrap(apperrors.Config, fmt.Sprintf("read config file %s", file), err)
		}
	}

	c := Config{
		Model:             v.GetString(KeyModel),
		Provider:          v.GetString(KeyProvider),
		BaseURL:           v.GetString(KeyBaseURL),
		LogLevel:          v.GetString(KeyLogLevel),
		RowLimit:          v.GetInt(KeyRowLimit),
		MaxClarifications: v.GetInt(KeyMaxClarifications),
		OptimizeAttempts:  v.GetInt(KeyOptimizeAttempts),
		ModelRetries:      v.GetInt(KeyModelRetries),
		ModelTimeout:      v.GetDuration(KeyModelTimeout),
		DiagnosticTimeout: v.GetDuration(KeyDiagnosticTimeout),
		History:           v.GetBool(KeyHistory),
		APIKeyParam:       v.GetString(KeyAPIKeyParam),
		AWSRegion:         v.GetString(KeyAWSRegion),
		MetricsFile:       v.GetString(KeyMetricsFile),
		PromptsFile:       v.GetString(KeyPromptsFile),
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects impossible values.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model must not be empty")
	}
	switch c.Provider {
	case "auto", "openai", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("provider %q must be auto, openai or anthropic", c.Provider))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log level %q must be debug, info, warn or error", c.LogLevel))
	}
	if c.RowLimit < 0 {
		problems = append(problems, "limit must not be negative")
	}
	if c.MaxClarifications < 0 {
		problems = append(problems, "max-clarifications must not be negative")
	}
	if c.OptimizeAttempts < 1 {
		problems = append(problems, "optimize-attempts must be at least 1")
	}
	if c.ModelRetries < 0 {
		problems = append(problems, "model-retries must not be negative")
	}
	if c.ModelTimeout <= 0 {
		problems = append(problems, "model-timeout must be positive")
	}
	if c.DiagnosticTimeout <= 0 {
		problems = append(problems, "diagnostic-timeout must be positive")
	}
	if len(problems) > 0 {
		return apperrors.Wrap(apperrors.Config, "invalid configuration", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}
