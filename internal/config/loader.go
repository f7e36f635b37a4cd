// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the service configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Populates Config.Build from linker-injected variables.
//  5. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Scheduling arithmetic assumes UTC everywhere.
	time.Local = time.UTC

	// godotenv.Load() silently succeeds if no .env file exists in the
	// working directory. It does NOT override existing environment variables.
	_ = godotenv.Load()

	// The empty prefix "" means envconfig uses the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateBudgets(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateBudgets enforces cross-field constraints that struct tags cannot
// express.
func validateBudgets(cfg *Config) error {
	if cfg.Worker.HardTimeLimit <= cfg.Worker.SoftTimeLimit {
		return &ConfigError{
			Type: ErrValidation,
			Message: fmt.Sprintf(
				"TASK_HARD_TIME_LIMIT (%s) must exceed TASK_SOFT_TIME_LIMIT (%s)",
				cfg.Worker.HardTimeLimit, cfg.Worker.SoftTimeLimit,
			),
		}
	}
	if cfg.Scheduler.RetentionDays < 1 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "REPORT_RETENTION_DAYS must be at least 1",
		}
	}
	if cfg.RateLimit.Limit < 1 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "RATE_LIMIT_PER_WINDOW must be at least 1",
		}
	}
	if cfg.RateLimit.Window < time.Second {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "RATE_LIMIT_WINDOW must be at least 1s",
		}
	}
	return nil
}
