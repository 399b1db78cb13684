// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTIssuer      string `mapstructure:"JWT_ISSUER"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	DBDriver                 string `mapstructure:"DB_DRIVER"`
	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBSQLitePath             string `mapstructure:"DB_SQLITE_PATH"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	StoreRetryAttempts    int `mapstructure:"STORE_RETRY_ATTEMPTS"`
	StoreRetryInitialMS   int `mapstructure:"STORE_RETRY_INITIAL_MS"`
	StoreRetryMaxMS       int `mapstructure:"STORE_RETRY_MAX_MS"`
	ReceiptRetentionHours int `mapstructure:"RECEIPT_RETENTION_HOURS"`

	NotifyDedupeWindowSeconds int `mapstructure:"NOTIFY_DEDUPE_WINDOW_SECONDS"`
	NotifyBatchSize           int `mapstructure:"NOTIFY_BATCH_SIZE"`
	NotifyPollIntervalMS      int `mapstructure:"NOTIFY_POLL_INTERVAL_MS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	DevBootstrapModerator bool   `mapstructure:"DEV_BOOTSTRAP_MODERATOR"`
	DevModeratorID        uint   `mapstructure:"DEV_MODERATOR_ID"`
	DevModeratorUsername  string `mapstructure:"DEV_MODERATOR_USERNAME"`
	SeedCategories        bool   `mapstructure:"SEED_CATEGORIES"`
}

const defaultJWTSecret = "your-secret-key-change-in-production"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_ISSUER", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "like_notifications=on,mention_notifications=on")
	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "forum")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SQLITE_PATH", "forum.db")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("STORE_RETRY_ATTEMPTS", 3)
	viper.SetDefault("STORE_RETRY_INITIAL_MS", 50)
	viper.SetDefault("STORE_RETRY_MAX_MS", 1000)
	viper.SetDefault("RECEIPT_RETENTION_HOURS", 24)

	viper.SetDefault("NOTIFY_DEDUPE_WINDOW_SECONDS", 600)
	viper.SetDefault("NOTIFY_BATCH_SIZE", 100)
	viper.SetDefault("NOTIFY_POLL_INTERVAL_MS", 2000)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("DEV_BOOTSTRAP_MODERATOR", false)
	viper.SetDefault("DEV_MODERATOR_ID", 1)
	viper.SetDefault("DEV_MODERATOR_USERNAME", "forum_root")
	viper.SetDefault("SEED_CATEGORIES", true)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.TracingExporter = strings.ToLower(strings.TrimSpace(c.TracingExporter))
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case "postgres":
	case "sqlite":
		if c.DBSQLitePath == "" {
			return errors.New("DB_SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.StoreRetryAttempts < 1 {
		return errors.New("STORE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.NotifyDedupeWindowSeconds < 1 {
		return errors.New("NOTIFY_DEDUPE_WINDOW_SECONDS must be positive")
	}
	if c.NotifyBatchSize < 1 {
		return errors.New("NOTIFY_BATCH_SIZE must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "postgres" {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must enable TLS in production")
			}
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
		if c.DevBootstrapModerator {
			return errors.New("DEV_BOOTSTRAP_MODERATOR cannot be enabled in production")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// StoreRetryInitial returns the first retry backoff interval.
func (c *Config) StoreRetryInitial() time.Duration {
	return time.Duration(c.StoreRetryInitialMS) * time.Millisecond
}

// StoreRetryMax returns the upper bound of a retry backoff interval.
func (c *Config) StoreRetryMax() time.Duration {
	return time.Duration(c.StoreRetryMaxMS) * time.Millisecond
}

// ReceiptRetention returns how long idempotency receipts are kept.
func (c *Config) ReceiptRetention() time.Duration {
	return time.Duration(c.ReceiptRetentionHours) * time.Hour
}

// NotifyDedupeWindow returns the width of a notification dedupe bucket.
func (c *Config) NotifyDedupeWindow() time.Duration {
	return time.Duration(c.NotifyDedupeWindowSeconds) * time.Second
}

// NotifyPollInterval returns how often the dispatcher polls the outbox.
func (c *Config) NotifyPollInterval() time.Duration {
	return time.Duration(c.NotifyPollIntervalMS) * time.Millisecond
}
