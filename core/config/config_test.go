package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaultsToLongpoll(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", RunMode: " Polling "}}
	require.NoError(t, Normalize(cfg))
	require.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing token", Config{}},
		{"negative admin", Config{Telegram: TelegramConfig{Token: "t", AdminID: -1}}},
		{"unknown mode", Config{Telegram: TelegramConfig{Token: "t", RunMode: "socket"}}},
		{"webhook without url", Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}},
		{"bad exclusion", Config{
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline_query"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			require.Error(t, Normalize(&cfg))
		})
	}
}

func TestNormalizeCleansExclusions(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback", "", "MESSAGE"}},
	}
	require.NoError(t, Normalize(cfg))
	require.Equal(t, []string{UpdateCallback, UpdateMessage}, cfg.RateLimit.ExcludeUpdates)
}

func TestLoadAppliesEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := "telegram:\n  token: from-file\n  admin_id: 10\nlogging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Telegram.Token)
	require.Equal(t, int64(10), cfg.Telegram.AdminID)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}
