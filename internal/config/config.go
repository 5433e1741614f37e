package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	StoreBackend   string // "dynamo" | "memory"
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3ReportBucket string // empty disables sweep report archiving

	TokenSecret     string
	TokenIssuer     string
	TokenAudience   string
	ResumeTokenTTL  time.Duration
	ResetSessionTTL time.Duration

	NotifierBackend string // "smtp" | "sns" | "log"
	SMTPHost        string
	SMTPPort        string
	SMTPFrom        string
	SMTPUsername    string
	SMTPPassword    string
	SNSRegion       string
	SNSTopicARN     string

	RedisAddr     string // empty falls back to the in-process ledger
	RedisPassword string
	RedisDB       int

	SchedulerTimezone string
	ExpireSchedule    string
	PurgeSchedule     string
	OpsAPIKey         string // empty disables the /ops routes

	OTP              OTPConfig
	PendingMaxAge    time.Duration
	ExpiredRetention time.Duration
	BcryptCost       int

	AllowedOrigins []string // CORS allowed origins
	TrustProxy     bool     // take the client address from X-Forwarded-For / X-Real-IP
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Signups    string
	Profiles   string
	Challenges string
	Sessions   string
}

// OTPConfig tunes the one-time code engine.
type OTPConfig struct {
	TTL              time.Duration
	MaxAttempts      int
	ResendCooldown   time.Duration
	DailyResendLimit int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:   getEnv("STORE_BACKEND", "dynamo"),
		AWSRegion:      getEnv("AWS_REGION", "ap-southeast-2"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Signups:    getEnv("DYNAMO_TABLE_SIGNUPS", "signups"),
			Profiles:   getEnv("DYNAMO_TABLE_PROFILES", "profiles"),
			Challenges: getEnv("DYNAMO_TABLE_CHALLENGES", "otp_challenges"),
			Sessions:   getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
		},
		S3ReportBucket: getEnv("S3_REPORT_BUCKET", ""),

		TokenSecret:     getEnv("TOKEN_SECRET", ""),
		TokenIssuer:     getEnv("TOKEN_ISSUER", "membership-api"),
		TokenAudience:   getEnv("TOKEN_AUDIENCE", "membership-web"),
		ResumeTokenTTL:  getEnvDuration("RESUME_TOKEN_TTL", 30*time.Minute),
		ResetSessionTTL: getEnvDuration("RESET_SESSION_TTL", 10*time.Minute),

		NotifierBackend: getEnv("NOTIFIER_BACKEND", "smtp"),
		SMTPHost:        getEnv("SMTP_HOST", "localhost"),
		SMTPPort:        getEnv("SMTP_PORT", "1025"),
		SMTPFrom:        getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SNSRegion:       getEnv("SNS_REGION", "ap-southeast-2"),
		SNSTopicARN:     getEnv("SNS_TOPIC_ARN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SchedulerTimezone: getEnv("SCHEDULER_TIMEZONE", "Australia/Sydney"),
		ExpireSchedule:    getEnv("EXPIRE_SCHEDULE", "0 2 * * *"),
		PurgeSchedule:     getEnv("PURGE_SCHEDULE", "30 2 * * *"),
		OpsAPIKey:         getEnv("OPS_API_KEY", ""),

		OTP: OTPConfig{
			TTL:              getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:      getEnvInt("OTP_MAX_ATTEMPTS", 5),
			ResendCooldown:   getEnvDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
			DailyResendLimit: getEnvInt("OTP_DAILY_RESEND_LIMIT", 5),
		},
		PendingMaxAge:    getEnvDuration("PENDING_MAX_AGE", 7*24*time.Hour),
		ExpiredRetention: getEnvDuration("EXPIRED_RETENTION", 15*24*time.Hour),
		BcryptCost:       getEnvInt("BCRYPT_COST", 10),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),
	}
}

// Validate reports configuration that would make the service unsafe or unbootable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.TokenSecret) < 32 {
		errs = append(errs, errors.New("TOKEN_SECRET must be at least 32 bytes"))
	}
	switch c.StoreBackend {
	case "dynamo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.NotifierBackend {
	case "smtp", "log":
	case "sns":
		if c.SNSTopicARN == "" {
			errs = append(errs, errors.New("SNS_TOPIC_ARN is required when NOTIFIER_BACKEND=sns"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFIER_BACKEND %q", c.NotifierBackend))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TIMEZONE: %w", err))
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.DailyResendLimit < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS and OTP_DAILY_RESEND_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves SchedulerTimezone. Calendar-day resend accounting uses the same zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.SchedulerTimezone)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
