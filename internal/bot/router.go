// Package bot turns inbound user events into replies. Router holds the
// decision logic and knows nothing about telebot; Handlers adapts it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/internal/chat"
	"github.com/m3rciful/kinobot/internal/conversation"
	"github.com/m3rciful/kinobot/internal/registry"
)

// Menu labels. Admins press them on the reply keyboard.
const (
	LabelMovies        = "🎬 Movies"
	LabelChannels      = "📢 Channels"
	LabelAdmins        = "👤 Admins"
	LabelStats         = "📊 Stats"
	LabelAddMovie      = "➕ Add movie"
	LabelDeleteMovie   = "🗑 Delete movie"
	LabelEditMovie     = "✏️ Edit movie"
	LabelAddAdmin      = "➕ Add admin"
	LabelDeleteAdmin   = "➖ Delete admin"
	LabelListAdmins    = "📋 Admin list"
	LabelAddChannel    = "➕ Add channel"
	LabelDeleteChannel = "➖ Delete channel"
	LabelBack          = "🔙 Back"
)

const (
	textAdminMenu     = "👑 Admin menu:"
	textMoviesMenu    = "🎬 Movies section:"
	textAdminsMenu    = "👤 Admins section:"
	textWelcome       = "You can use the bot now! Send a movie code."
	textSubscribe     = "Subscribe to the channels to use the bot:"
	textSubConfirmed  = "✅ Subscription confirmed! Now send a movie code."
	textNotSubscribed = "❗ You are not subscribed to all channels yet."
	textNotFound      = "❌ No movie with this code."
	textMovieLink     = "🎬 Movie: %s\n\nMore codes are in the channel!"
	textCancelled     = "Action cancelled."
	textNothingToStop = "Nothing to cancel."
	textPrevCancelled = "The previous action was cancelled."
)

var (
	mainMenu     = [][]string{{LabelMovies, LabelChannels}, {LabelAdmins, LabelStats}}
	moviesMenu   = [][]string{{LabelAddMovie, LabelDeleteMovie}, {LabelEditMovie}, {LabelBack}}
	adminsMenu   = [][]string{{LabelAddAdmin, LabelDeleteAdmin}, {LabelListAdmins}, {LabelBack}}
	channelsMenu = [][]string{{LabelAddChannel, LabelDeleteChannel}, {LabelBack}}
	backOnly     = [][]string{{LabelBack}}
)

// workflowLabels maps the buttons that open a workflow.
var workflowLabels = map[string]conversation.Kind{
	LabelAddMovie:      conversation.AddMovie,
	LabelDeleteMovie:   conversation.DeleteMovie,
	LabelEditMovie:     conversation.EditMovie,
	LabelAddAdmin:      conversation.AddAdmin,
	LabelDeleteAdmin:   conversation.DeleteAdmin,
	LabelAddChannel:    conversation.AddChannel,
	LabelDeleteChannel: conversation.DeleteChannel,
}

// Registry is the read side the router needs.
type Registry interface {
	IsAdmin(id int64) bool
	AddUserIfAbsent(ctx context.Context, id int64) (bool, error)
	FindMovie(code string) (registry.Movie, bool)
	ListChannels() []string
	ListAdmins() []int64
	Stats() registry.Stats
}

// Gate decides whether a non-admin may look up movies.
type Gate interface {
	IsSubscribed(ctx context.Context, userID int64) bool
	Channels() []string
}

// Engine runs admin workflows.
type Engine interface {
	Start(ctx context.Context, userID int64, kind conversation.Kind) ([]chat.Reply, error)
	Handle(ctx context.Context, userID int64, in chat.Input) ([]chat.Reply, error)
	Cancel(ctx context.Context, userID int64) bool
	Active(userID int64) (conversation.Kind, bool)
}

// Router classifies events. Every method returns the replies to send in order;
// a non-nil error is for logging and may come with replies.
type Router struct {
	reg    Registry
	gate   Gate
	engine Engine
}

// NewRouter wires a Router.
func NewRouter(reg Registry, gate Gate, engine Engine) *Router {
	return &Router{reg: reg, gate: gate, engine: engine}
}

// InSession reports whether the user is inside a workflow.
func (r *Router) InSession(userID int64) bool {
	_, ok := r.engine.Active(userID)
	return ok
}

func (r *Router) recordUser(ctx context.Context, userID int64) {
	if _, err := r.reg.AddUserIfAbsent(ctx, userID); err != nil {
		logger.LogEvent(ctx, logger.Registry, slog.LevelWarn, "user.record",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// Start greets the user: admins get the menu, others the gate verdict.
func (r *Router) Start(ctx context.Context, userID int64) []chat.Reply {
	r.recordUser(ctx, userID)
	if r.reg.IsAdmin(userID) {
		return []chat.Reply{chat.MenuPrompt{Text: textAdminMenu, Options: mainMenu}}
	}
	if r.gate.IsSubscribed(ctx, userID) {
		return []chat.Reply{chat.TextMessage{Text: textWelcome, RemoveKeyboard: true}}
	}
	return []chat.Reply{r.subscribePrompt(textSubscribe)}
}

// Cancel drops the user's workflow and returns an admin to the main menu.
func (r *Router) Cancel(ctx context.Context, userID int64) []chat.Reply {
	cancelled := r.engine.Cancel(ctx, userID)
	if !r.reg.IsAdmin(userID) {
		if cancelled {
			return []chat.Reply{chat.Text(textCancelled)}
		}
		return []chat.Reply{chat.Text(textNothingToStop)}
	}
	text := textAdminMenu
	if cancelled {
		text = textCancelled + "\n\n" + textAdminMenu
	}
	return []chat.Reply{chat.MenuPrompt{Text: text, Options: mainMenu}}
}

// CheckSubscription re-runs the gate after the user pressed the check button.
func (r *Router) CheckSubscription(ctx context.Context, userID int64) []chat.Reply {
	r.recordUser(ctx, userID)
	if r.reg.IsAdmin(userID) || r.gate.IsSubscribed(ctx, userID) {
		return []chat.Reply{chat.TextMessage{Text: textSubConfirmed, RemoveKeyboard: true}}
	}
	return []chat.Reply{r.subscribePrompt(textNotSubscribed)}
}

// Stats reports registry counters. Non-admins get nothing.
func (r *Router) Stats(ctx context.Context, userID int64) []chat.Reply {
	if !r.reg.IsAdmin(userID) {
		denied(ctx, userID, "stats")
		return nil
	}
	s := r.reg.Stats()
	return []chat.Reply{chat.Text(fmt.Sprintf(
		"👥 Users: %d\n🎬 Movies: %d\n👑 Admins: %d\n📢 Channels: %d",
		s.Users, s.Movies, s.Admins, s.Channels,
	))}
}

// Handle routes a message that is not a slash command.
func (r *Router) Handle(ctx context.Context, userID int64, in chat.Input) ([]chat.Reply, error) {
	r.recordUser(ctx, userID)

	text := ""
	if t, ok := in.(chat.TextInput); ok {
		text = strings.TrimSpace(t.Text)
	}
	if isMenuLabel(text) {
		if !r.reg.IsAdmin(userID) {
			denied(ctx, userID, text)
			return nil, nil
		}
		return r.menu(ctx, userID, text)
	}

	if kind, ok := r.engine.Active(userID); ok {
		if !r.reg.IsAdmin(userID) {
			// admin rights were revoked mid-workflow
			r.engine.Cancel(ctx, userID)
			denied(ctx, userID, string(kind))
			return nil, nil
		}
		replies, err := r.engine.Handle(ctx, userID, in)
		if !errors.Is(err, conversation.ErrNoSession) {
			return r.decorate(userID, kind, replies), err
		}
	}

	if _, ok := in.(chat.MediaInput); ok || text == "" {
		return nil, nil
	}
	if !r.reg.IsAdmin(userID) && !r.gate.IsSubscribed(ctx, userID) {
		return []chat.Reply{r.subscribePrompt(textSubscribe)}, nil
	}
	return []chat.Reply{r.lookup(ctx, text)}, nil
}

func (r *Router) menu(ctx context.Context, userID int64, label string) ([]chat.Reply, error) {
	if kind, ok := workflowLabels[label]; ok {
		replies, err := r.engine.Start(ctx, userID, kind)
		return r.decorate(userID, kind, replies), err
	}

	var out []chat.Reply
	if r.engine.Cancel(ctx, userID) {
		out = append(out, chat.Text(textPrevCancelled))
	}
	switch label {
	case LabelMovies:
		out = append(out, chat.MenuPrompt{Text: textMoviesMenu, Options: moviesMenu})
	case LabelChannels:
		out = append(out, chat.MenuPrompt{Text: r.channelsText(), Options: channelsMenu})
	case LabelAdmins:
		out = append(out, chat.MenuPrompt{Text: textAdminsMenu, Options: adminsMenu})
	case LabelListAdmins:
		out = append(out, chat.MenuPrompt{Text: r.adminsText(), Options: adminsMenu})
	case LabelStats:
		out = append(out, r.Stats(ctx, userID)...)
	case LabelBack:
		text := textAdminMenu
		if len(out) > 0 {
			out, text = nil, textCancelled+"\n\n"+textAdminMenu
		}
		out = append(out, chat.MenuPrompt{Text: text, Options: mainMenu})
	}
	return out, nil
}

// decorate attaches a keyboard to the last reply: Back while the workflow is
// waiting for input, otherwise the menu of the section it belongs to.
func (r *Router) decorate(userID int64, kind conversation.Kind, replies []chat.Reply) []chat.Reply {
	if len(replies) == 0 {
		return replies
	}
	last, ok := replies[len(replies)-1].(chat.TextMessage)
	if !ok {
		return replies
	}
	options := sectionMenu(kind)
	if _, active := r.engine.Active(userID); active {
		options = backOnly
	}
	replies[len(replies)-1] = chat.MenuPrompt{Text: last.Text, Options: options}
	return replies
}

func sectionMenu(kind conversation.Kind) [][]string {
	switch kind {
	case conversation.AddMovie, conversation.DeleteMovie, conversation.EditMovie:
		return moviesMenu
	case conversation.AddAdmin, conversation.DeleteAdmin:
		return adminsMenu
	case conversation.AddChannel, conversation.DeleteChannel:
		return channelsMenu
	}
	return mainMenu
}

func (r *Router) lookup(ctx context.Context, code string) chat.Reply {
	m, ok := r.reg.FindMovie(code)
	logger.LogEvent(ctx, logger.Registry, slog.LevelDebug, "movie.lookup",
		slog.String("status", lo.Ternary(ok, "hit", "miss")),
		slog.String("code", logger.SanitizeLimit(code, 64)),
	)
	if !ok {
		return chat.Text(textNotFound)
	}
	if m.IsMedia() {
		kind := chat.MediaVideo
		if m.MediaType == registry.MediaDocument {
			kind = chat.MediaDocument
		}
		return chat.MediaMessage{Media: chat.Media{Kind: kind, Token: m.Payload}, Caption: m.Caption}
	}
	return chat.Text(fmt.Sprintf(textMovieLink, m.Payload))
}

func (r *Router) subscribePrompt(text string) chat.SubscribePrompt {
	return chat.SubscribePrompt{Text: text, Channels: r.gate.Channels()}
}

func (r *Router) channelsText() string {
	channels := r.reg.ListChannels()
	if len(channels) == 0 {
		return "📢 The channel list is empty."
	}
	return "📢 Channels:\n" + strings.Join(channels, "\n")
}

func (r *Router) adminsText() string {
	ids := lo.Map(r.reg.ListAdmins(), func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	})
	return "👑 Admins:\n" + strings.Join(ids, "\n")
}

func isMenuLabel(text string) bool {
	if _, ok := workflowLabels[text]; ok {
		return true
	}
	switch text {
	case LabelMovies, LabelChannels, LabelAdmins, LabelStats, LabelListAdmins, LabelBack:
		return true
	}
	return false
}

func denied(ctx context.Context, userID int64, what string) {
	logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "access.denied",
		slog.String("outcome", "denied"),
		slog.Int64("user_id", userID),
		slog.String("action", logger.SanitizeLimit(what, 64)),
	)
}
