// Package app wires the registry, gate, conversation engine and Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/kinobot/core/bootstrap"
	coredatabase "github.com/m3rciful/kinobot/core/database"
	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/core/metrics"
	coretelegram "github.com/m3rciful/kinobot/core/telegram"
	"github.com/m3rciful/kinobot/core/telegram/router"
	"github.com/m3rciful/kinobot/internal/bot"
	"github.com/m3rciful/kinobot/internal/conversation"
	"github.com/m3rciful/kinobot/internal/gate"
	"github.com/m3rciful/kinobot/internal/registry"
)

// App holds the long-lived components of a running bot.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	registry *registry.Registry
	oracle   *gate.TelegramOracle
	engine   *conversation.Engine
	handlers *bot.Handlers
	commands *coretelegram.Registry
}

// Bootstrap initializes logging and storage, seeds the registry and builds the handlers.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	var dbCfg *coredatabase.Config
	if cfg.Storage.Driver == DriverPostgres {
		dbCfg = &cfg.Database
	}
	res, err := bootstrap.Run(bootstrap.Options{Config: &cfg.Config, Database: dbCfg})
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Storage, res.DB)
	if err != nil {
		closeDB(res.DB)
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	reg, err := registry.Open(ctx, store, registry.WithAutoCode(cfg.Kino.AutoCode))
	if err != nil {
		_ = store.Close()
		closeDB(res.DB)
		return nil, fmt.Errorf("app: open registry: %w", err)
	}

	a := assemble(cfg, reg)
	a.db = res.DB
	err = bootstrap.RunSeeders(ctx, bootstrap.SeederFunc{
		Label: "registry",
		Fn: func(ctx context.Context) error {
			return reg.Seed(ctx, cfg.Telegram.AdminID, cfg.Kino.Channels)
		},
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	stats := reg.Stats()
	logger.Info(ctx, "app", "bootstrap",
		slog.String("status", "ok"),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("auto_code", reg.AutoCode()),
		slog.Int("movies", stats.Movies),
		slog.Int("channels", stats.Channels),
		slog.Int("admins", stats.Admins),
	)
	if stats.Admins == 0 {
		logger.Warn(ctx, "app", "bootstrap.no_admins",
			slog.String("status", "degraded"),
			slog.String("hint", "set telegram.admin_id to seed the first admin"),
		)
	}
	return a, nil
}

// assemble builds the domain components on top of an open registry.
// The oracle stays unbound until the bot exists.
func assemble(cfg *Config, reg *registry.Registry) *App {
	oracle := gate.NewTelegramOracle(nil)
	engine := conversation.New(reg, conversation.WithTTL(cfg.Kino.SessionTTL))
	r := bot.NewRouter(reg, gate.New(oracle, reg, cfg.Kino.OracleTimeout), engine)
	return &App{
		cfg:      cfg,
		registry: reg,
		oracle:   oracle,
		engine:   engine,
		handlers: bot.NewHandlers(r),
		commands: coretelegram.NewRegistry(),
	}
}

func openStore(cfg StorageConfig, db *sqlx.DB) (registry.Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		if db == nil {
			return nil, errors.New("postgres driver selected without a database connection")
		}
		return registry.NewPostgresStore(db), nil
	case DriverBadger:
		return registry.OpenBadgerStore(cfg.BadgerDir)
	default:
		return registry.NewFileStore(cfg.File), nil
	}
}

// TelegramRunOptions describes routes, middlewares and lifecycle hooks for the core runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if err := a.handlers.Register(a.commands); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	routes := router.CommandRoutes(a.commands, router.CommandRouteOptions{Admins: a.registry})
	routes = append(routes, router.MessageRoutes(a.handlers, a.commands, router.MessageOptions{
		Text:  a.handlers.Handle,
		Media: a.handlers.Handle,
	})...)
	routes = append(routes, router.CallbackRoute(a.commands))

	// text, media and the check button all arrive as messages or callback queries
	return coretelegram.RunOptions{
		Config:         &a.cfg.Config,
		Registry:       a.commands,
		Middlewares:    coretelegram.DefaultMiddlewares(&a.cfg.Config, nil),
		Routes:         routes,
		AllowedUpdates: []string{"message", "callback_query"},
		OnStart:        a.onStart,
		OnStop: func(context.Context, coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	if rt.Bot != nil {
		a.oracle.Bind(rt.Bot)
	}
	go a.engine.Run(ctx)

	if addr := a.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.Error(ctx, "app", "metrics.serve",
					slog.String("status", "fail"),
					slog.String("listen", addr),
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	return nil
}

// Close releases the registry store and the database connection.
func (a *App) Close() error {
	err := a.registry.Close()
	if a.db != nil {
		err = errors.Join(err, a.db.Close())
	}
	return err
}

func closeDB(db *sqlx.DB) {
	if db != nil {
		_ = db.Close()
	}
}
