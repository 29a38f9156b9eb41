// Package config loads ptree settings from the global config file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents configuration stored in ~/.config/ptree/config.yml.
// Durations are in seconds.
type Config struct {
	APIKey         string  `yaml:"api_key,omitempty"`
	RateLimitDelay float64 `yaml:"rate_limit_delay" validate:"gt=0"`
	MaxRetries     int     `yaml:"max_retries" validate:"gte=0,lte=10"`
	MaxDepth       int     `yaml:"max_depth" validate:"gte=0,lte=10"`
	Timeout        float64 `yaml:"timeout" validate:"gt=0"`
	BaseURL        string  `yaml:"base_url,omitempty" validate:"omitempty,url"`
	PostgresURL    string  `yaml:"postgres_url,omitempty" validate:"omitempty,url"`
	Table          string  `yaml:"table" validate:"required,max=63"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "ptree"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// Environment variables that override the config file.
const (
	EnvAPIKey         = "S2_API_KEY"
	EnvRateLimitDelay = "PTREE_RATE_LIMIT_DELAY"
	EnvMaxRetries     = "PTREE_MAX_RETRIES"
	EnvMaxDepth       = "PTREE_MAX_DEPTH"
	EnvPostgresURL    = "PTREE_POSTGRES_URL"
)

// ErrInvalidConfig marks configuration that failed to parse or validate.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = newValidator()

// newValidator returns a validator that reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// globalConfigCache caches the loaded global config.
var globalConfigCache *Config

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RateLimitDelay: 1.5,
		MaxRetries:     3,
		MaxDepth:       2,
		Timeout:        30,
		Table:          "citation_tree",
	}
}

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/ptree/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global config file, applies environment
// overrides and validates the result. A missing file yields the defaults.
// The result is cached for the life of the process.
func LoadGlobalConfig() (*Config, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg, err := Load(GlobalConfigPath())
	if err != nil {
		return nil, err
	}

	globalConfigCache = cfg
	return cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates. An empty path or missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvPostgresURL); v != "" {
		c.PostgresURL = v
	}
	if v := os.Getenv(EnvRateLimitDelay); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvRateLimitDelay, v)
		}
		c.RateLimitDelay = f
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvMaxRetries, v)
		}
		c.MaxRetries = n
	}
	if v := os.Getenv(EnvMaxDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvMaxDepth, v)
		}
		c.MaxDepth = n
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError reports the first failed constraint in terms of the
// YAML field name.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	e := validationErrs[0]
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	case "gt":
		return fmt.Errorf("%w: %s must be greater than %s", ErrInvalidConfig, field, e.Param())
	case "gte":
		return fmt.Errorf("%w: %s must be at least %s", ErrInvalidConfig, field, e.Param())
	case "lte", "max":
		return fmt.Errorf("%w: %s must not exceed %s", ErrInvalidConfig, field, e.Param())
	case "url":
		return fmt.Errorf("%w: %s must be a URL", ErrInvalidConfig, field)
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidConfig, field, e.Tag())
}

// RateLimit returns RateLimitDelay as a duration.
func (c Config) RateLimit() time.Duration {
	return seconds(c.RateLimitDelay)
}

// RequestTimeout returns Timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Timeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// MaskedAPIKey returns the API key with all but the last four characters hidden.
func (c Config) MaskedAPIKey() string {
	return mask(c.APIKey)
}

// MaskedPostgresURL returns the Postgres URL with its password hidden.
func (c Config) MaskedPostgresURL() string {
	u := c.PostgresURL
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 {
		return u
	}
	userinfo := u[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return u[:scheme+3] + userinfo[:colon] + ":****" + u[at:]
	}
	return u
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
