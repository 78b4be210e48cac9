// Package gate decides whether a user is subscribed to every required channel.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/core/metrics"
)

// Status is a channel membership role as reported by the oracle.
type Status string

const (
	StatusCreator       Status = "creator"
	StatusAdministrator Status = "administrator"
	StatusMember        Status = "member"
	StatusRestricted    Status = "restricted"
	StatusLeft          Status = "left"
	StatusKicked        Status = "kicked"
	StatusUnknown       Status = "unknown"
)

// Subscribed reports whether s counts as a subscription.
func (s Status) Subscribed() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	}
	return false
}

// Oracle answers membership questions about one channel.
type Oracle interface {
	MembershipStatus(ctx context.Context, channel string, userID int64) (Status, error)
}

// ChannelSource lists the channels a user must join.
type ChannelSource interface {
	ListChannels() []string
}

const defaultTimeout = 5 * time.Second

// Gate checks subscriptions without caching.
type Gate struct {
	oracle   Oracle
	channels ChannelSource
	timeout  time.Duration
}

// New builds a Gate. A non-positive timeout falls back to five seconds.
func New(oracle Oracle, channels ChannelSource, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gate{oracle: oracle, channels: channels, timeout: timeout}
}

// Channels returns the channels currently required.
func (g *Gate) Channels() []string {
	return g.channels.ListChannels()
}

// IsSubscribed queries each channel in order and stops at the first miss.
// Oracle errors count as not subscribed.
func (g *Gate) IsSubscribed(ctx context.Context, userID int64) bool {
	start := time.Now()
	for _, ch := range g.channels.ListChannels() {
		status, err := g.query(ctx, ch, userID)
		if err != nil {
			metrics.GateChecksTotal.WithLabelValues("oracle_error").Inc()
			logger.LogEvent(ctx, logger.Gate, slog.LevelWarn, "gate.check",
				slog.String("outcome", "denied"),
				slog.String("channel", ch),
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
				slog.Duration("duration", logger.Took(start)),
			)
			return false
		}
		if !status.Subscribed() {
			metrics.GateChecksTotal.WithLabelValues("not_subscribed").Inc()
			if logger.ShouldSampleDebug() {
				logger.LogEvent(ctx, logger.Gate, slog.LevelDebug, "gate.check",
					slog.String("outcome", "denied"),
					slog.String("channel", ch),
					slog.String("status", string(status)),
					slog.Duration("duration", logger.Took(start)),
				)
			}
			return false
		}
	}
	metrics.GateChecksTotal.WithLabelValues("subscribed").Inc()
	return true
}

func (g *Gate) query(ctx context.Context, channel string, userID int64) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.oracle.MembershipStatus(ctx, channel, userID)
}
