package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/m3rciful/kinobot/core/logger"
	tg "github.com/m3rciful/kinobot/core/telegram"
	"github.com/m3rciful/kinobot/core/telegram/commands"
	tghelpers "github.com/m3rciful/kinobot/core/telegram/helpers"
	"github.com/m3rciful/kinobot/core/telegram/keyboard"
	"github.com/m3rciful/kinobot/internal/chat"

	tele "gopkg.in/telebot.v4"
)

// CallbackCheckSub is the unique of the "check subscription" button.
const CallbackCheckSub = "check_sub"

const labelCheck = "✅ Check"

// Handlers adapts Router to telebot: it extracts inputs and renders replies.
type Handlers struct {
	router *Router
}

// NewHandlers wraps r.
func NewHandlers(r *Router) *Handlers {
	return &Handlers{router: r}
}

// Register adds the bot commands and callbacks to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := map[string]commands.Command{
		"/start":  {Handler: h.Start, Description: "Start the bot"},
		"/cancel": {Handler: h.Cancel, Description: "Cancel the current action"},
		"/stats":  {Handler: h.Stats, Description: "Bot statistics", AdminOnly: true},
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}
	return reg.RegisterCallback(CallbackCheckSub, h.CheckSubscription)
}

// Start handles /start.
func (h *Handlers) Start(c tele.Context) error {
	ctx, uid := scope(c)
	return render(c, h.router.Start(ctx, uid))
}

// Cancel handles /cancel.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx, uid := scope(c)
	return render(c, h.router.Cancel(ctx, uid))
}

// Stats handles /stats.
func (h *Handlers) Stats(c tele.Context) error {
	ctx, uid := scope(c)
	return render(c, h.router.Stats(ctx, uid))
}

// CheckSubscription handles the check button under the subscribe prompt.
func (h *Handlers) CheckSubscription(c tele.Context) error {
	ctx, uid := scope(c)
	return render(c, h.router.CheckSubscription(ctx, uid))
}

// InProgress reports whether userID is inside a workflow.
func (h *Handlers) InProgress(userID int64) bool {
	return h.router.InSession(userID)
}

// Handle routes text, video and document messages.
func (h *Handlers) Handle(c tele.Context) error {
	ctx, uid := scope(c)
	replies, err := h.router.Handle(ctx, uid, inputOf(c))
	if rerr := render(c, replies); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func scope(c tele.Context) (context.Context, int64) {
	ctx := tghelpers.BuildContext(c)
	if u := c.Sender(); u != nil {
		return ctx, u.ID
	}
	return ctx, 0
}

func inputOf(c tele.Context) chat.Input {
	msg := c.Message()
	if msg == nil {
		return chat.TextInput{Text: c.Text()}
	}
	switch {
	case msg.Video != nil:
		return chat.MediaInput{
			Media:   chat.Media{Kind: chat.MediaVideo, Token: msg.Video.FileID},
			Caption: msg.Caption,
		}
	case msg.Document != nil:
		return chat.MediaInput{
			Media:   chat.Media{Kind: chat.MediaDocument, Token: msg.Document.FileID},
			Caption: msg.Caption,
		}
	}
	return chat.TextInput{Text: msg.Text}
}

// render sends replies in order and stops at the first failure.
func render(c tele.Context, replies []chat.Reply) error {
	for _, r := range replies {
		if err := send(c, r); err != nil {
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "reply.send",
				slog.String("status", "fail"),
				slog.String("reply", fmt.Sprintf("%T", r)),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return err
		}
	}
	return nil
}

func send(c tele.Context, r chat.Reply) error {
	switch v := r.(type) {
	case chat.TextMessage:
		if v.RemoveKeyboard {
			return tghelpers.SendText(c, v.Text, keyboard.RemoveKeyboard())
		}
		return tghelpers.SendText(c, v.Text)
	case chat.MenuPrompt:
		return tghelpers.SendText(c, v.Text, keyboard.ReplyButtons(v.Options...))
	case chat.SubscribePrompt:
		return tghelpers.SendText(c, v.Text, subscribeMarkup(v.Channels))
	case chat.MediaMessage:
		file := tele.File{FileID: v.Media.Token}
		if v.Media.Kind == chat.MediaDocument {
			return tghelpers.Send(c, "send.document", "sendDocument", &tele.Document{File: file, Caption: v.Caption})
		}
		return tghelpers.Send(c, "send.video", "sendVideo", &tele.Video{File: file, Caption: v.Caption})
	}
	return fmt.Errorf("bot: unsupported reply %T", r)
}

// subscribeMarkup lists one URL button per public channel and the check button.
// Channels given by numeric id have no public link and are skipped.
func subscribeMarkup(channels []string) *tele.ReplyMarkup {
	links := lo.FilterMap(channels, func(ch string, _ int) (keyboard.LinkBtn, bool) {
		u, ok := keyboard.ChannelURL(ch)
		return keyboard.LinkBtn{Text: ch, URL: u}, ok
	})
	return keyboard.LinksWithAction(links, keyboard.DataBtn{Text: labelCheck, Unique: CallbackCheckSub})
}
