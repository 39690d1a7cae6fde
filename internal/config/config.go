// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the YAML file overlaid under the environment.
const EnvConfigFile = "COURSEGPT_CONFIG"

// Config holds all application configuration.
type Config struct {
	APIBaseURL      string         `yaml:"api_base_url" validate:"required,url"`
	Port            string         `yaml:"port" validate:"required,numeric"`
	FrontendURL     string         `yaml:"frontend_url" validate:"omitempty,url"`
	DBPath          string         `yaml:"db_path" validate:"required"`
	SnapshotEnabled bool           `yaml:"snapshot_enabled"`
	RequestTimeout  time.Duration  `yaml:"request_timeout" validate:"gt=0"`
	PersistDebounce time.Duration  `yaml:"persist_debounce" validate:"gte=0"`
	LogLevel        string         `yaml:"log_level" validate:"oneof=debug info warn error"`
	Training        TrainingConfig `yaml:"training"`
}

// TrainingConfig bounds the model training poller.
type TrainingConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gt=0"`
	MaxWait      time.Duration `yaml:"max_wait" validate:"gt=0"`
}

// envKeys maps struct fields to the variables that set them, for error
// messages.
var envKeys = map[string]string{
	"APIBaseURL":      "API_BASE_URL",
	"Port":            "PORT",
	"FrontendURL":     "FRONTEND_URL",
	"DBPath":          "DB_PATH",
	"RequestTimeout":  "REQUEST_TIMEOUT",
	"PersistDebounce": "PERSIST_DEBOUNCE",
	"LogLevel":        "LOG_LEVEL",
	"PollInterval":    "TRAINING_POLL_INTERVAL",
	"MaxAttempts":     "TRAINING_MAX_ATTEMPTS",
	"MaxWait":         "TRAINING_MAX_WAIT",
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            "8090",
		DBPath:          "./data/session.db",
		SnapshotEnabled: true,
		RequestTimeout:  30 * time.Second,
		PersistDebounce: 500 * time.Millisecond,
		LogLevel:        "info",
		Training: TrainingConfig{
			PollInterval: 3 * time.Second,
			MaxAttempts:  200,
			MaxWait:      15 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// named by COURSEGPT_CONFIG when path is empty), then environment
// variables. Environment variables win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.SnapshotEnabled = getEnvBool("SNAPSHOT_ENABLED", c.SnapshotEnabled)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.PersistDebounce = getEnvDuration("PERSIST_DEBOUNCE", c.PersistDebounce)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.Training.PollInterval = getEnvDuration("TRAINING_POLL_INTERVAL", c.Training.PollInterval)
	c.Training.MaxAttempts = getEnvInt("TRAINING_MAX_ATTEMPTS", c.Training.MaxAttempts)
	c.Training.MaxWait = getEnvDuration("TRAINING_MAX_WAIT", c.Training.MaxWait)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		key, ok := envKeys[fe.Field()]
		if !ok {
			key = fe.Field()
		}
		if fe.Tag() == "required" {
			errs = append(errs, fmt.Errorf("%s cannot be empty", key))
			continue
		}
		errs = append(errs, fmt.Errorf("%s is invalid (%s %s)", key, fe.Tag(), fe.Param()))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigin is the UI origin accepted by CORS and the websocket.
func (c *Config) AllowedOrigin() string {
	if c.FrontendURL == "" {
		return "*"
	}
	return strings.TrimRight(c.FrontendURL, "/")
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
