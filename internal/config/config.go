package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string

	// Calendar gateway settings. Unused in dev mode.
	CalendarAPIBase  string
	CalendarAPIToken string

	// Service-account identity used for shared-calendar writes and all syncs.
	ServiceAccountID     string
	ServiceAccountSecret string

	// DevMode short-circuits every provider call to deterministic fake data.
	// Defaults to true unless CREWCAL_E2E=1.
	DevMode bool

	RetryBaseDelay time.Duration
}

func LoadConfig() (*Config, error) {
	retryDelayStr := getEnv("RETRY_BASE_DELAY", "1s")
	retryDelay, err := time.ParseDuration(retryDelayStr)
	if err != nil {
		return nil, errors.New("invalid RETRY_BASE_DELAY format")
	}

	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		CalendarAPIBase:      os.Getenv("CALENDAR_API_BASE"),
		CalendarAPIToken:     os.Getenv("CALENDAR_API_TOKEN"),
		ServiceAccountID:     os.Getenv("SERVICE_ACCOUNT_ID"),
		ServiceAccountSecret: os.Getenv("SERVICE_ACCOUNT_SECRET"),
		DevMode:              loadDevMode(),
		RetryBaseDelay:       retryDelay,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if !cfg.DevMode {
		if cfg.CalendarAPIBase == "" {
			return nil, errors.New("CALENDAR_API_BASE is required outside dev mode")
		}
		if cfg.ServiceAccountID == "" || cfg.ServiceAccountSecret == "" {
			return nil, errors.New("SERVICE_ACCOUNT_ID and SERVICE_ACCOUNT_SECRET are required outside dev mode")
		}
	}

	return cfg, nil
}

// loadDevMode resolves the offline switch: an explicit DEV_MODE wins,
// otherwise dev mode is on unless the e2e harness flag is set.
func loadDevMode() bool {
	switch os.Getenv("DEV_MODE") {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return os.Getenv("CREWCAL_E2E") != "1"
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
