package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"MAX_KEYWORDS_PER_ADD", "MAX_KEYWORDS_PER_ROOM", "HEALTH_CHECK_INTERVAL",
	"PROBE_TIMEOUT", "PROBE_RETRIES", "PROBE_CONCURRENCY", "PROBE_EXHAUSTED_UNREACHABLE",
	"SEND_RATE", "SESSION_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func defaults(token string) *Config {
	return &Config{
		TelegramBotToken:          token,
		DatabasePath:              "./data/bot.db",
		LogLevel:                  "info",
		MaxKeywordsPerAdd:         20,
		MaxKeywordsPerRoom:        50,
		HealthCheckInterval:       6 * time.Hour,
		ProbeTimeout:              10 * time.Second,
		ProbeRetries:              3,
		ProbeConcurrency:          4,
		ProbeExhaustedUnreachable: true,
		SendRate:                  20,
		SessionTTL:                30 * time.Minute,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: defaults("test-token"),
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":          "tok",
				"DATABASE_PATH":               "/tmp/bot.db",
				"LOG_LEVEL":                   "debug",
				"ALLOWED_USERS":               "111,222,333",
				"MAX_KEYWORDS_PER_ADD":        "5",
				"MAX_KEYWORDS_PER_ROOM":       "10",
				"HEALTH_CHECK_INTERVAL":       "1h",
				"PROBE_TIMEOUT":               "3s",
				"PROBE_RETRIES":               "0",
				"PROBE_CONCURRENCY":           "8",
				"PROBE_EXHAUSTED_UNREACHABLE": "false",
				"SEND_RATE":                   "2.5",
				"SESSION_TTL":                 "5m",
			},
			want: &Config{
				TelegramBotToken:          "tok",
				DatabasePath:              "/tmp/bot.db",
				LogLevel:                  "debug",
				AllowedUsers:              []int64{111, 222, 333},
				MaxKeywordsPerAdd:         5,
				MaxKeywordsPerRoom:        10,
				HealthCheckInterval:       time.Hour,
				ProbeTimeout:              3 * time.Second,
				ProbeRetries:              0,
				ProbeConcurrency:          8,
				ProbeExhaustedUnreachable: false,
				SendRate:                  2.5,
				SessionTTL:                5 * time.Minute,
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			}(),
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "invalid duration",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":    "tok",
				"HEALTH_CHECK_INTERVAL": "daily",
			},
			wantErr: true,
		},
		{
			name: "negative retries",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"PROBE_RETRIES":      "-1",
			},
			wantErr: true,
		},
		{
			name: "zero room cap",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":    "tok",
				"MAX_KEYWORDS_PER_ROOM": "0",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// t.Setenv restores the original value; unset so godotenv may fill it.
	if err := os.Unsetenv("TELEGRAM_BOT_TOKEN"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), ".env")
	content := "TELEGRAM_BOT_TOKEN=from-file\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TELEGRAM_BOT_TOKEN") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff("from-file", cfg.TelegramBotToken); diff != "" {
		t.Errorf("token (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("warn", cfg.LogLevel); diff != "" {
		t.Errorf("environment must win over the file (-want +got):\n%s", diff)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
