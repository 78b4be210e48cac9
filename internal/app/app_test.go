package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/kinobot/core/config"
	coretelegram "github.com/m3rciful/kinobot/core/telegram"
	"github.com/m3rciful/kinobot/internal/registry"
)

const sampleConfig = `
telegram:
  token: "123:abc"
  admin_id: 10
storage:
  driver: Badger
kino:
  channels: [" @kino_club ", "@kino_club", ""]
  session_ttl: 10m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("KINO_AUTO_CODE", "true")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.EqualValues(t, 10, cfg.CoreConfig().Telegram.AdminID)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, defaultBadgerDir, cfg.Storage.BadgerDir)
	assert.Equal(t, []string{"@kino_club"}, cfg.Kino.Channels)
	assert.Equal(t, 10*time.Minute, cfg.Kino.SessionTTL)
	assert.True(t, cfg.Kino.AutoCode)
}

func TestNormalizeStorage(t *testing.T) {
	base := coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}}

	cfg := &Config{Config: base}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, defaultDataFile, cfg.Storage.File)

	cfg = &Config{Config: base, Storage: StorageConfig{Driver: "postgres"}}
	require.ErrorContains(t, cfg.Normalize(), "database.host")

	cfg = &Config{Config: base, Storage: StorageConfig{Driver: "mongo"}}
	require.ErrorContains(t, cfg.Normalize(), "invalid storage.driver")

	cfg = &Config{Config: base, Kino: KinoConfig{SessionTTL: -time.Second}}
	require.Error(t, cfg.Normalize())
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &Config{
		Config:  coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t", AdminID: 10}},
		Storage: StorageConfig{File: filepath.Join(t.TempDir(), "kino.json")},
	}
	require.NoError(t, cfg.Normalize())

	reg, err := registry.Open(context.Background(), registry.NewFileStore(cfg.Storage.File))
	require.NoError(t, err)
	require.NoError(t, reg.Seed(context.Background(), cfg.Telegram.AdminID, nil))
	return assemble(cfg, reg)
}

func TestTelegramRunOptions(t *testing.T) {
	a := newTestApp(t)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, a.commands, opts.Registry)
	assert.NotEmpty(t, opts.Middlewares)

	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, want := range []any{"/start", "/cancel", "/stats", tele.OnText, tele.OnVideo, tele.OnDocument, tele.OnCallback} {
		assert.True(t, endpoints[want], "missing route %v", want)
	}

	_, ok := a.commands.GetCallback("check_sub")
	assert.True(t, ok)
	_, err = a.TelegramRunOptions()
	assert.Error(t, err, "handlers register once")
}

func TestLifecycle(t *testing.T) {
	a := newTestApp(t)
	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	s, err := openStore(StorageConfig{Driver: DriverBadger, BadgerDir: filepath.Join(dir, "badger")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &registry.BadgerStore{}, s)
	require.NoError(t, s.Close())

	s, err = openStore(StorageConfig{Driver: DriverFile, File: filepath.Join(dir, "db.json")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &registry.FileStore{}, s)

	_, err = openStore(StorageConfig{Driver: DriverPostgres}, nil)
	assert.Error(t, err)
}
