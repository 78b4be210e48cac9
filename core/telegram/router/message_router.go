package router

import (
	"time"

	tg "github.com/m3rciful/kinobot/core/telegram"
	"github.com/m3rciful/kinobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation intercepts messages while a user is inside a multi-step dialog.
type Conversation interface {
	InProgress(userID int64) bool
	Handle(c tele.Context) error
}

// MessageOptions supplies the handlers used when no dialog is in progress.
type MessageOptions struct {
	// Text handles plain text that is not a registered command.
	Text tele.HandlerFunc
	// Media handles videos and documents.
	Media tele.HandlerFunc
}

// MessageRoutes builds handlers for text, video and document updates.
// Priority: active conversation, command lookup (aliases), then the fallbacks.
func MessageRoutes(conv Conversation, reg *tg.Registry, opts MessageOptions) []tg.Route {
	inDialog := func(c tele.Context) bool {
		return conv != nil && c.Sender() != nil && conv.InProgress(c.Sender().ID)
	}

	text := func(c tele.Context) error {
		start := time.Now()
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error { return cmd.Handler(c) })
			}
		}
		if inDialog(c) {
			return handleWithSummary(c, "conversation", start, func() error { return conv.Handle(c) })
		}
		if opts.Text != nil {
			return handleWithSummary(c, "text", start, func() error { return opts.Text(c) })
		}
		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	media := func(c tele.Context) error {
		start := time.Now()
		if inDialog(c) {
			return handleWithSummary(c, "conversation.media", start, func() error { return conv.Handle(c) })
		}
		if opts.Media != nil {
			return handleWithSummary(c, "media", start, func() error { return opts.Media(c) })
		}
		logHandlerSummary(c, "unexpected_media", start, "skip", nil)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnVideo, Handler: wrap(media)},
		{Endpoint: tele.OnDocument, Handler: wrap(media)},
	}
}
