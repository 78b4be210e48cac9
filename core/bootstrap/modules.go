package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/kinobot/core/logger"
)

// Seeder loads reference data once the storage is open.
type Seeder interface {
	Name() string
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name returns the label used in logs.
func (f SeederFunc) Name() string { return f.Label }

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error { return f.Fn(ctx) }

// RunSeeders executes seeders in order and stops at the first failure.
func RunSeeders(ctx context.Context, seeders ...Seeder) error {
	for _, s := range seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		if err := s.Seed(ctx); err != nil {
			logger.Error(ctx, "app", "seed",
				slog.String("status", "fail"),
				slog.String("seeder", s.Name()),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("bootstrap: seeder %s failed: %w", s.Name(), err)
		}
		logger.Info(ctx, "app", "seed",
			slog.String("status", "ok"),
			slog.String("seeder", s.Name()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return nil
}
