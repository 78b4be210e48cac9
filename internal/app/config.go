package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	coreconfig "github.com/m3rciful/kinobot/core/config"
	coredatabase "github.com/m3rciful/kinobot/core/database"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

const (
	defaultDataFile  = "data/kinobot.json"
	defaultBadgerDir = "data/badger"
)

// StorageConfig selects where the registry lives.
type StorageConfig struct {
	Driver    string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	File      string `yaml:"file" envconfig:"STORAGE_FILE"`
	BadgerDir string `yaml:"badger_dir" envconfig:"STORAGE_BADGER_DIR"`
}

// KinoConfig holds the movie bot settings.
type KinoConfig struct {
	// Channels seed the required channel list on first start only.
	Channels      []string      `yaml:"channels" envconfig:"KINO_CHANNELS"`
	AutoCode      bool          `yaml:"auto_code" envconfig:"KINO_AUTO_CODE"`
	SessionTTL    time.Duration `yaml:"session_ttl" envconfig:"KINO_SESSION_TTL"`
	OracleTimeout time.Duration `yaml:"oracle_timeout" envconfig:"KINO_ORACLE_TIMEOUT"`
}

// Config is the full bot configuration. The core part is inlined so the YAML
// keeps telegram, logging and the rest at the top level.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Storage  StorageConfig       `yaml:"storage"`
	Kino     KinoConfig          `yaml:"kino"`
}

// CoreConfig exposes the embedded core settings to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads YAML from path, applies the environment and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "", DriverFile:
		c.Storage.Driver = DriverFile
		if strings.TrimSpace(c.Storage.File) == "" {
			c.Storage.File = defaultDataFile
		}
	case DriverBadger:
		if strings.TrimSpace(c.Storage.BadgerDir) == "" {
			c.Storage.BadgerDir = defaultBadgerDir
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres storage driver")
		}
		if c.Database.Port == "" {
			c.Database.Port = "5432"
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, postgres, badger", c.Storage.Driver)
	}

	if c.Kino.SessionTTL < 0 || c.Kino.OracleTimeout < 0 {
		return fmt.Errorf("kino.session_ttl and kino.oracle_timeout must be >= 0")
	}
	c.Kino.Channels = lo.Uniq(lo.Compact(lo.Map(c.Kino.Channels, func(ch string, _ int) string {
		return strings.TrimSpace(ch)
	})))
	return nil
}
