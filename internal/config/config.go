package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmcnulty/linecanon/internal/secrets"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Feed identities. PrimarySource is the odds/score provider whose
	// observations drive the "odds" freshness category; SecondarySource is the
	// schedule/score fallback.
	Sport           string
	PrimarySource   string
	SecondarySource string

	// Windows and staleness thresholds
	WindowDays     int
	OddsStaleFor   time.Duration
	ScoresStaleFor time.Duration

	// Scheduling (daemon mode)
	ResolveIntervalMins      int
	CanonicalizeIntervalMins int
	FreshnessIntervalMins    int

	// Alerts
	AlertMode         string // log, discord, or comma-separated list
	DiscordWebhookURL string
	DiscordRPS        float64

	// Metrics/Health
	HealthPort int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:              getEnv("ENVIRONMENT", "production"),
		DatabaseDSN:              secrets.GetOptional("DATABASE_DSN", "linecanon:linecanon@tcp(mysql:3306)/linecanon?parseTime=true"),
		DatabaseMaxConns:         getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime:      time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		Sport:                    getEnv("SPORT", "americanfootball_ncaaf"),
		PrimarySource:            getEnv("PRIMARY_SOURCE", "oddsapi"),
		SecondarySource:          getEnv("SECONDARY_SOURCE", "cfbd"),
		WindowDays:               getEnvInt("WINDOW_DAYS", 3),
		OddsStaleFor:             time.Duration(getEnvInt("ODDS_STALE_FOR_MINS", 180)) * time.Minute,
		ScoresStaleFor:           time.Duration(getEnvInt("SCORES_STALE_FOR_MINS", 1440)) * time.Minute,
		ResolveIntervalMins:      getEnvInt("RESOLVE_INTERVAL_MINS", 30),
		CanonicalizeIntervalMins: getEnvInt("CANONICALIZE_INTERVAL_MINS", 15),
		FreshnessIntervalMins:    getEnvInt("FRESHNESS_INTERVAL_MINS", 10),
		AlertMode:                getEnv("ALERT_MODE", "log"),
		DiscordWebhookURL:        secrets.GetOptional("DISCORD_WEBHOOK_URL", ""),
		DiscordRPS:               getEnvFloat("DISCORD_RPS", 1.0),
		HealthPort:               getEnvInt("HEALTH_PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("WINDOW_DAYS must be positive, got %d", c.WindowDays)
	}
	if c.OddsStaleFor <= 0 || c.ScoresStaleFor <= 0 {
		return fmt.Errorf("staleness thresholds must be positive")
	}
	if c.PrimarySource == "" || c.SecondarySource == "" {
		return fmt.Errorf("PRIMARY_SOURCE and SECONDARY_SOURCE are required")
	}

	hasDiscord := false
	for _, mode := range strings.Split(c.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
		case "discord":
			hasDiscord = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, discord)", mode)
		}
	}
	if hasDiscord && c.DiscordWebhookURL == "" {
		return fmt.Errorf("DISCORD_WEBHOOK_URL is required when discord is in ALERT_MODE")
	}

	return nil
}

// Window returns the configured rolling window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
