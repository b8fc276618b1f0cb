// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	MaxKeywordsPerAdd  int
	MaxKeywordsPerRoom int

	HealthCheckInterval       time.Duration
	ProbeTimeout              time.Duration
	ProbeRetries              uint64
	ProbeConcurrency          int
	ProbeExhaustedUnreachable bool

	SendRate   float64
	SessionTTL time.Duration
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envString("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envString("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	var err error
	if cfg.MaxKeywordsPerAdd, err = envInt("MAX_KEYWORDS_PER_ADD", 20); err != nil {
		return nil, err
	}
	if cfg.MaxKeywordsPerRoom, err = envInt("MAX_KEYWORDS_PER_ROOM", 50); err != nil {
		return nil, err
	}
	if cfg.ProbeConcurrency, err = envInt("PROBE_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	retries, err := envInt("PROBE_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, fmt.Errorf("PROBE_RETRIES must not be negative, got %d", retries)
	}
	cfg.ProbeRetries = uint64(retries)

	if cfg.HealthCheckInterval, err = envDuration("HEALTH_CHECK_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = envDuration("PROBE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = envDuration("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.ProbeExhaustedUnreachable, err = envBool("PROBE_EXHAUSTED_UNREACHABLE", true); err != nil {
		return nil, err
	}

	cfg.SendRate = 20
	if raw := os.Getenv("SEND_RATE"); raw != "" {
		if cfg.SendRate, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE %q: %w", raw, err)
		}
	}

	if cfg.MaxKeywordsPerAdd < 1 || cfg.MaxKeywordsPerRoom < 1 {
		return nil, fmt.Errorf("keyword limits must be positive")
	}
	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
