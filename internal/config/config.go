package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env  string
	Port string

	DatabaseURL string
	RedisURL    string
	SeedDevData bool

	// BaseURL is the public origin used when building recipient view links
	BaseURL string

	SessionSecret  string
	EncryptionKey  string // base64, 32 bytes decoded (AES-256)
	LinkSigningKey string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// Mailer settings. Transport is "webhook" (edge function) or "smtp".
	MailTransport  string
	MailWebhookURL string
	MailSecret     string
	MailStubMode   bool
	MailFrom       string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string

	// Sweep cadence (cron expressions consumed by the scheduler)
	InactivitySweepSchedule string
	DateSweepSchedule       string

	// ActivityDebounce suppresses repeat last-active writes within the window
	ActivityDebounce time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Env:  getEnvWithDefault("ENV", "development"),
		Port: getEnvWithDefault("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		SeedDevData: os.Getenv("SEED_DEV_DATA") == "true",

		BaseURL: getEnvWithDefault("BASE_URL", "http://localhost:8080"),

		SessionSecret:  os.Getenv("SESSION_SECRET"),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
		LinkSigningKey: os.Getenv("LINK_SIGNING_KEY"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),

		MailTransport:  getEnvWithDefault("MAIL_TRANSPORT", "webhook"),
		MailWebhookURL: os.Getenv("MAIL_WEBHOOK_URL"),
		MailSecret:     os.Getenv("MAIL_SECRET"),
		MailStubMode:   os.Getenv("MAIL_STUB_MODE") == "true",
		MailFrom:       getEnvWithDefault("MAIL_FROM", "no-reply@afterwords.app"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       getEnvIntWithDefault("SMTP_PORT", 587),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),

		InactivitySweepSchedule: getEnvWithDefault("INACTIVITY_SWEEP_SCHEDULE", "0 * * * *"),
		DateSweepSchedule:       getEnvWithDefault("DATE_SWEEP_SCHEDULE", "*/15 * * * *"),

		ActivityDebounce: getEnvDurationWithDefault("ACTIVITY_DEBOUNCE", time.Minute),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	if cfg.LinkSigningKey == "" {
		cfg.LinkSigningKey = cfg.SessionSecret
		log.Println("WARNING: LINK_SIGNING_KEY not set, falling back to SESSION_SECRET. Rotating the session secret will invalidate recipient view links.")
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
