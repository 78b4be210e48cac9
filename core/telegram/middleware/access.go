package middleware

import (
	"log/slog"

	"github.com/m3rciful/kinobot/core/logger"
	tghelpers "github.com/m3rciful/kinobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminChecker reports whether a Telegram user holds admin rights.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	Admins AdminChecker
	// OnReject runs for non-admins; nil drops the update silently.
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only admins reach downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if opts.Admins == nil {
			return next
		}
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender != nil && opts.Admins.IsAdmin(sender.ID) {
				return next(c)
			}
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "access.denied",
				slog.String("outcome", "denied"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
