// Package config defines the global configuration structure for the
// ThreatWatch service. Configuration is loaded once at process startup and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ThreatWatch service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"threatwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Redis         RedisConfig
	Email         EmailConfig
	Search        SearchConfig
	Auth          AuthConfig
	Scheduler     SchedulerConfig
	Worker        WorkerConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	ScanQueueURL         string `envconfig:"SQS_SCAN_QUEUE" validate:"required,url"`
	NotificationQueueURL string `envconfig:"SQS_NOTIFICATION_QUEUE" validate:"required,url"`
	ArtifactBucket       string `envconfig:"ARTIFACT_BUCKET"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// RedisConfig holds the Redis connection used for rate-limit counters and
// worker health round trips.
type RedisConfig struct {
	URL         SecretString  `envconfig:"REDIS_URL" validate:"required"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Enabled true"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@threatwatch.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"ThreatWatch Alerts"`
	Enabled        bool         `envconfig:"EMAIL_ENABLED" default:"true"`
}

// SearchConfig holds the upstream search provider settings.
type SearchConfig struct {
	BaseURL    string        `envconfig:"SEARCH_API_URL" validate:"required,url"`
	APIKey     SecretString  `envconfig:"SEARCH_API_KEY" validate:"required"`
	Timeout    time.Duration `envconfig:"SEARCH_TIMEOUT" default:"15s"`
	MaxResults int           `envconfig:"SEARCH_MAX_RESULTS" default:"20"`
}

// AuthConfig holds token verification secrets.
type AuthConfig struct {
	JWTSecret SecretString `envconfig:"JWT_SECRET" validate:"required,min=32"`
}

// SchedulerConfig holds the sweep and retention cadence for the scheduler
// process.
type SchedulerConfig struct {
	SweepInterval    time.Duration `envconfig:"SCHEDULER_SWEEP_INTERVAL" default:"5m"`
	RetentionDays    int           `envconfig:"REPORT_RETENTION_DAYS" default:"30"`
	RetentionRunSpec string        `envconfig:"RETENTION_CRON" default:"0 3 * * *"`
}

// WorkerConfig holds task execution budgets and queue polling settings.
type WorkerConfig struct {
	SoftTimeLimit     time.Duration `envconfig:"TASK_SOFT_TIME_LIMIT" default:"60s"`
	HardTimeLimit     time.Duration `envconfig:"TASK_HARD_TIME_LIMIT" default:"90s"`
	PollWaitSeconds   int32         `envconfig:"WORKER_POLL_WAIT_SECONDS" default:"20"`
	MaxMessages       int32         `envconfig:"WORKER_MAX_MESSAGES" default:"5"`
	VisibilityTimeout int32         `envconfig:"WORKER_VISIBILITY_TIMEOUT" default:"120"`
}

// RateLimitConfig holds fixed-window rate limiting parameters for the public
// API surface.
type RateLimitConfig struct {
	Enabled bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Limit   int           `envconfig:"RATE_LIMIT_PER_WINDOW" default:"10"`
	Window  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ThreatWatch"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
