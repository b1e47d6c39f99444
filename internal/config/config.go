package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Email providers
const (
	EmailProviderSES    = "ses"
	EmailProviderSMTP   = "smtp"
	EmailProviderResend = "resend"
	EmailProviderLog    = "log"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OTP      OTPConfig
	Email    EmailConfig
	Grant    GrantConfig
}

type ServerConfig struct {
	Port                string
	Env                 string
	LogLevel            string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	TrustedProxies      []string
	AllowedOrigins      []string
	IPRequestsPerMinute int
}

type DatabaseConfig struct {
	Driver            string
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type OTPConfig struct {
	CodeTTL         time.Duration
	MaxAttempts     int
	Cooldown        time.Duration
	HourlyLimit     int
	DailyLimit      int
	Retention       time.Duration
	CleanupInterval time.Duration
	CodePepper      string

	// Failed verifications are padded to VerifyMinDuration plus up to VerifyJitter
	VerifyMinDuration time.Duration
	VerifyJitter      time.Duration
}

type EmailConfig struct {
	Providers    []string
	From         string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
	SendTimeout  time.Duration
}

type GrantConfig struct {
	Secret string
	TTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:                getEnv("PORT", "8080"),
			Env:                 env,
			LogLevel:            getEnv("LOG_LEVEL", "info"),
			ReadTimeout:         getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:        getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:         getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies:      getEnvAsList("TRUSTED_PROXIES", nil),
			AllowedOrigins:      getEnvAsList("ALLOWED_ORIGINS", nil),
			IPRequestsPerMinute: getEnvAsInt("IP_REQUESTS_PER_MINUTE", 20),
		},
		Database: DatabaseConfig{
			Driver:            strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "passcode"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		OTP: OTPConfig{
			CodeTTL:         getEnvAsDuration("OTP_CODE_TTL", 10*time.Minute),
			MaxAttempts:     getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			Cooldown:        getEnvAsDuration("OTP_COOLDOWN", 60*time.Second),
			HourlyLimit:     getEnvAsInt("OTP_HOURLY_LIMIT", 3),
			DailyLimit:      getEnvAsInt("OTP_DAILY_LIMIT", 10),
			Retention:       getEnvAsDuration("OTP_RETENTION", 24*time.Hour),
			CleanupInterval: getEnvAsDuration("OTP_CLEANUP_INTERVAL", 1*time.Hour),
			CodePepper:      getEnv("OTP_CODE_PEPPER", ""),

			VerifyMinDuration: getEnvAsDuration("OTP_VERIFY_MIN_DURATION", 150*time.Millisecond),
			VerifyJitter:      getEnvAsDuration("OTP_VERIFY_JITTER", 50*time.Millisecond),
		},
		Email: EmailConfig{
			Providers:    getEnvAsList("EMAIL_PROVIDERS", []string{EmailProviderLog}),
			From:         getEnv("EMAIL_FROM", "no-reply@localhost"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			SendTimeout:  getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
		Grant: GrantConfig{
			Secret: getEnv("GRANT_SECRET", ""),
			TTL:    getEnvAsDuration("GRANT_TTL", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// dailyLedgerWindow is the longest window the issuance ceilings look back over
const dailyLedgerWindow = 24 * time.Hour

func (c *Config) validate() error {
	switch c.Database.Driver {
	case StoreDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q (got %q)", StoreDriverPostgres, StoreDriverMemory, c.Database.Driver)
	}

	if err := validateSecret("OTP_CODE_PEPPER", c.OTP.CodePepper, c.Server.Env); err != nil {
		return err
	}
	if err := validateSecret("GRANT_SECRET", c.Grant.Secret, c.Server.Env); err != nil {
		return err
	}

	if c.OTP.MaxAttempts < 1 || c.OTP.HourlyLimit < 1 || c.OTP.DailyLimit < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS, OTP_HOURLY_LIMIT and OTP_DAILY_LIMIT must be positive")
	}
	if c.OTP.CodeTTL <= 0 {
		return fmt.Errorf("OTP_CODE_TTL must be positive")
	}
	if c.OTP.Cooldown < 0 {
		return fmt.Errorf("OTP_COOLDOWN must not be negative")
	}

	// Purged records drop out of the daily ledger, so retention must outlive it
	if c.OTP.Retention < dailyLedgerWindow || c.OTP.Retention < c.OTP.CodeTTL {
		return fmt.Errorf("OTP_RETENTION must be at least %s and at least OTP_CODE_TTL (got %s)", dailyLedgerWindow, c.OTP.Retention)
	}
	if c.OTP.CleanupInterval <= 0 {
		return fmt.Errorf("OTP_CLEANUP_INTERVAL must be positive")
	}
	if c.Server.IPRequestsPerMinute < 1 {
		return fmt.Errorf("IP_REQUESTS_PER_MINUTE must be positive")
	}

	for _, provider := range c.Email.Providers {
		switch provider {
		case EmailProviderSES:
		case EmailProviderSMTP:
			if c.Email.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required for the smtp email provider")
			}
		case EmailProviderResend:
			if c.Email.ResendAPIKey == "" {
				return fmt.Errorf("RESEND_API_KEY is required for the resend email provider")
			}
		case EmailProviderLog:
			if c.Server.Env == "production" {
				return fmt.Errorf("the log email provider cannot be used in production")
			}
		default:
			return fmt.Errorf("unknown email provider %q", provider)
		}
	}
	if len(c.Email.Providers) == 0 {
		return fmt.Errorf("EMAIL_PROVIDERS must name at least one provider")
	}

	return nil
}

// validateSecret enforces minimum security standards for keying material
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	return items
}
