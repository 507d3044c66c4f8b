package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port             string
	DBUrl            string
	JWTSecret        string
	AppEnv           string
	LogLevel         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
	Billing          BillingConfig
}

type BillingConfig struct {
	TickInterval   time.Duration
	DebitTimeout   time.Duration
	EndedRetention time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DB_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            dbURL,
		JWTSecret:        jwtSecret,
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:         strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "livecoach"),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Billing: BillingConfig{
			TickInterval:   getEnvDuration("BILLING_TICK_INTERVAL", time.Second),
			DebitTimeout:   getEnvDuration("BILLING_DEBIT_TIMEOUT", 3*time.Second),
			EndedRetention: getEnvDuration("BILLING_ENDED_RETENTION", 10*time.Minute),
		},
	}

	if cfg.Billing.TickInterval > time.Minute {
		return nil, fmt.Errorf("BILLING_TICK_INTERVAL must not exceed 1m, got %s", cfg.Billing.TickInterval)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvDuration falls back on empty, unparsable, or non-positive values.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
