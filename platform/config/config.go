// Package config loads settings from the environment (and .env in
// development) and exposes them through narrow per-consumer interfaces.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetEmailProvider() string
	GetBrevoAPIKey() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketProlongationReports() string
	IsMinIOEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReconcileCronSpec() string
}

// ApprovalsConfig provides the business rules of the approval engine.
type ApprovalsConfig interface {
	GetApprovalNumberPrefix() string
	GetApprovalDefaultDuration() ApprovalDuration
	GetSuspensionMaxRetroactivityDays() int
	GetProlongationWindowMonthsBeforeEnd() int
	GetProlongationWindowMonthsAfterEnd() int
}

// ApprovalDuration is a calendar duration expressed in years and days.
// Days is applied after Years; the default grant of 2 years ends the day
// before the anniversary.
type ApprovalDuration struct {
	Years int
	Days  int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	AppBaseURL       string
	EmailEnabled     bool
	EmailProvider    string
	BrevoAPIKey      string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	MinIOEndpoint                  string
	MinIOAccessKey                 string
	MinIOSecretKey                 string
	MinIOUseSSL                    bool
	MinIOMaxFileSize               int64
	MinioBucketProlongationReports string

	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	ReconcileCronSpec string

	ApprovalNumberPrefix              string
	ApprovalDefaultDuration           ApprovalDuration
	SuspensionMaxRetroactivityDays    int
	ProlongationWindowMonthsBeforeEnd int
	ProlongationWindowMonthsAfterEnd  int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketProlongationReports() string {
	return c.MinioBucketProlongationReports
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) GetReconcileCronSpec() string { return c.ReconcileCronSpec }

// ApprovalsConfig implementation
func (c *Config) GetApprovalNumberPrefix() string              { return c.ApprovalNumberPrefix }
func (c *Config) GetApprovalDefaultDuration() ApprovalDuration { return c.ApprovalDefaultDuration }
func (c *Config) GetSuspensionMaxRetroactivityDays() int       { return c.SuspensionMaxRetroactivityDays }
func (c *Config) GetProlongationWindowMonthsBeforeEnd() int {
	return c.ProlongationWindowMonthsBeforeEnd
}
func (c *Config) GetProlongationWindowMonthsAfterEnd() int {
	return c.ProlongationWindowMonthsAfterEnd
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailProvider := strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp"))
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:3000"),
		EmailEnabled:     emailEnabled,
		EmailProvider:    emailProvider,
		BrevoAPIKey:      getEnv("BREVO_API_KEY", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Les emplois de l'inclusion"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		MinIOEndpoint:                  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:                 getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:                 getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                    strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:               mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "5242880")),
		MinioBucketProlongationReports: getEnv("MINIO_BUCKET_PROLONGATION_REPORTS", "prolongation-reports"),

		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:  mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		ReconcileCronSpec: getEnv("RECONCILE_CRON", "0 3 * * *"),

		ApprovalNumberPrefix:              getEnv("APPROVAL_NUMBER_PREFIX", "XXXXX"),
		ApprovalDefaultDuration:           ApprovalDuration{Years: mustInt(getEnv("APPROVAL_DEFAULT_DURATION_YEARS", "2")), Days: -1},
		SuspensionMaxRetroactivityDays:    mustInt(getEnv("SUSPENSION_MAX_RETROACTIVITY_DAYS", "30")),
		ProlongationWindowMonthsBeforeEnd: mustInt(getEnv("PROLONGATION_WINDOW_MONTHS_BEFORE_END", "7")),
		ProlongationWindowMonthsAfterEnd:  mustInt(getEnv("PROLONGATION_WINDOW_MONTHS_AFTER_END", "3")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.ApprovalNumberPrefix) != 5 {
		return fmt.Errorf("APPROVAL_NUMBER_PREFIX must be exactly 5 characters, got %q", c.ApprovalNumberPrefix)
	}
	if c.ApprovalDefaultDuration.Years <= 0 {
		return fmt.Errorf("APPROVAL_DEFAULT_DURATION_YEARS must be positive")
	}
	if c.SuspensionMaxRetroactivityDays < 0 {
		return fmt.Errorf("SUSPENSION_MAX_RETROACTIVITY_DAYS cannot be negative")
	}
	if c.EmailEnabled {
		if c.EmailFromAddress == "" {
			return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
		}
		switch c.EmailProvider {
		case "smtp":
			if c.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
			}
		case "brevo":
			if c.BrevoAPIKey == "" {
				return fmt.Errorf("BREVO_API_KEY is required when EMAIL_PROVIDER is brevo")
			}
		default:
			return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.EmailProvider)
		}
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

// RequireJWT checks the settings only the HTTP server needs.
func (c *Config) RequireJWT() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// GetDurationEnv reads a Go duration from the environment, falling back on
// empty, invalid or non-positive values.
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
