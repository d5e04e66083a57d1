package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the jobtracker server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Tracker  TrackerConfig
	Reaper   ReaperConfig
	Stream   StreamConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
	// RateLimitPerMin caps requests per client IP per minute. Zero disables limiting.
	RateLimitPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
	// StatementTimeout bounds every query server-side; zero leaves the server default.
	StatementTimeout time.Duration
}

type RedisConfig struct {
	URL string
	// KeyPrefix namespaces every key so several deployments can share a server.
	KeyPrefix string
}

type TrackerConfig struct {
	// StrictFinish serialises finish against child starts with an advisory lock.
	StrictFinish bool
	CacheTTL     time.Duration
}

type ReaperConfig struct {
	// Schedule is a robfig/cron spec. Empty disables the reaper.
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

type StreamConfig struct {
	PollInterval time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("JOBTRACKER_PORT", 8080),
			Env:             envString("JOBTRACKER_ENV", "development"),
			AllowedOrigins:  envList("JOBTRACKER_ALLOWED_ORIGINS"),
			RateLimitPerMin: envInt("JOBTRACKER_RATE_LIMIT_PER_MIN", 600),
		},
		Database: DatabaseConfig{
			URL:              os.Getenv("DATABASE_URL"),
			MaxOpenConns:     envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:    envString("DATABASE_MIGRATIONS_DIR", "migrations"),
			StatementTimeout: envDuration("DATABASE_STATEMENT_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			KeyPrefix: envString("REDIS_KEY_PREFIX", "jobtracker"),
		},
		Tracker: TrackerConfig{
			StrictFinish: envBool("JOBTRACKER_STRICT_FINISH", false),
			CacheTTL:     envDuration("JOBTRACKER_CACHE_TTL", 24*time.Hour),
		},
		Reaper: ReaperConfig{
			Schedule:   envString("REAPER_SCHEDULE", "@every 5m"),
			StaleAfter: envDuration("REAPER_STALE_AFTER", 6*time.Hour),
			BatchSize:  envInt("REAPER_BATCH_SIZE", 100),
		},
		Stream: StreamConfig{
			PollInterval: envDuration("STREAM_POLL_INTERVAL", time.Second),
		},
	}

	// An explicitly empty REAPER_SCHEDULE turns the reaper off.
	if v, ok := os.LookupEnv("REAPER_SCHEDULE"); ok && v == "" {
		cfg.Reaper.Schedule = ""
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("JOBTRACKER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Reaper.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reaper.Schedule); err != nil {
			return fmt.Errorf("REAPER_SCHEDULE is not a valid cron spec %q: %w", c.Reaper.Schedule, err)
		}
		if c.Reaper.StaleAfter <= 0 {
			return fmt.Errorf("REAPER_STALE_AFTER must be positive, got %s", c.Reaper.StaleAfter)
		}
		if c.Reaper.BatchSize <= 0 {
			return fmt.Errorf("REAPER_BATCH_SIZE must be positive, got %d", c.Reaper.BatchSize)
		}
	}

	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive, got %s", c.Stream.PollInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
