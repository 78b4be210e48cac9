package bot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/kinobot/internal/chat"
	"github.com/m3rciful/kinobot/internal/conversation"
	"github.com/m3rciful/kinobot/internal/gate"
	"github.com/m3rciful/kinobot/internal/registry"
)

const (
	adminID int64 = 1
	userID  int64 = 42
)

type fakeOracle struct {
	mu       sync.Mutex
	statuses map[int64]gate.Status
	calls    int
}

func (f *fakeOracle) MembershipStatus(_ context.Context, _ string, uid int64) (gate.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if s, ok := f.statuses[uid]; ok {
		return s, nil
	}
	return gate.StatusLeft, nil
}

func (f *fakeOracle) set(uid int64, s gate.Status) {
	f.mu.Lock()
	f.statuses[uid] = s
	f.mu.Unlock()
}

type fixture struct {
	router *Router
	reg    *registry.Registry
	oracle *fakeOracle
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	reg, err := registry.Open(ctx, registry.NewFileStore(filepath.Join(t.TempDir(), "db.json")))
	require.NoError(t, err)
	require.NoError(t, reg.Seed(ctx, adminID, []string{"@kino_club"}))

	oracle := &fakeOracle{statuses: map[int64]gate.Status{}}
	g := gate.New(oracle, reg, 0)
	return fixture{
		router: NewRouter(reg, g, conversation.New(reg)),
		reg:    reg,
		oracle: oracle,
	}
}

func text(s string) chat.Input { return chat.TextInput{Text: s} }

func lastText(t *testing.T, replies []chat.Reply) string {
	t.Helper()
	require.NotEmpty(t, replies)
	switch v := replies[len(replies)-1].(type) {
	case chat.TextMessage:
		return v.Text
	case chat.MenuPrompt:
		return v.Text
	case chat.SubscribePrompt:
		return v.Text
	}
	t.Fatalf("unexpected reply %T", replies[len(replies)-1])
	return ""
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.router.Start(ctx, adminID)
	menu, ok := admin[0].(chat.MenuPrompt)
	require.True(t, ok)
	assert.Equal(t, mainMenu, menu.Options)

	prompt, ok := f.router.Start(ctx, userID)[0].(chat.SubscribePrompt)
	require.True(t, ok)
	assert.Equal(t, []string{"@kino_club"}, prompt.Channels)
	assert.Equal(t, 2, f.reg.Stats().Users)

	f.oracle.set(userID, gate.StatusMember)
	assert.Equal(t, textWelcome, lastText(t, f.router.Start(ctx, userID)))
}

func TestLookupRequiresSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.AddMovie(ctx, registry.Movie{Code: "007", Payload: "https://example.com/bond"})
	require.NoError(t, err)

	replies, err := f.router.Handle(ctx, userID, text("007"))
	require.NoError(t, err)
	_, ok := replies[0].(chat.SubscribePrompt)
	require.True(t, ok)

	f.oracle.set(userID, gate.StatusAdministrator)
	replies, err = f.router.Handle(ctx, userID, text(" 007 "))
	require.NoError(t, err)
	assert.Contains(t, lastText(t, replies), "https://example.com/bond")

	replies, err = f.router.Handle(ctx, userID, text("nope"))
	require.NoError(t, err)
	assert.Equal(t, textNotFound, lastText(t, replies))

	f.oracle.set(userID, gate.StatusRestricted)
	replies, err = f.router.Handle(ctx, userID, text("007"))
	require.NoError(t, err)
	_, ok = replies[0].(chat.SubscribePrompt)
	assert.True(t, ok)
}

func TestAdminsBypassGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.UpsertMovie(ctx, registry.Movie{
		Code: "9", Payload: "BAADAgAD", MediaType: registry.MediaDocument, Caption: "Heat",
	})
	require.NoError(t, err)

	replies, err := f.router.Handle(ctx, adminID, text("9"))
	require.NoError(t, err)
	msg, ok := replies[0].(chat.MediaMessage)
	require.True(t, ok)
	assert.Equal(t, chat.Media{Kind: chat.MediaDocument, Token: "BAADAgAD"}, msg.Media)
	assert.Equal(t, "Heat", msg.Caption)
	assert.Zero(t, f.oracle.calls)
}

func TestMenuLabelsIgnoredForUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.set(userID, gate.StatusMember)

	for _, label := range []string{LabelAddMovie, LabelStats, LabelBack, LabelAdmins} {
		replies, err := f.router.Handle(ctx, userID, text(label))
		require.NoError(t, err)
		assert.Empty(t, replies, label)
	}
	assert.Nil(t, f.router.Stats(ctx, userID))
	assert.False(t, f.router.InSession(userID))
}

func TestAddMovieThroughMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	replies, err := f.router.Handle(ctx, adminID, text(LabelAddMovie))
	require.NoError(t, err)
	prompt := replies[len(replies)-1].(chat.MenuPrompt)
	assert.Equal(t, backOnly, prompt.Options)
	assert.True(t, f.router.InSession(adminID))

	_, err = f.router.Handle(ctx, adminID, text("101"))
	require.NoError(t, err)
	replies, err = f.router.Handle(ctx, adminID, chat.MediaInput{
		Media:   chat.Media{Kind: chat.MediaVideo, Token: "BAACAgIAAx"},
		Caption: "Alien",
	})
	require.NoError(t, err)
	ack := replies[len(replies)-1].(chat.MenuPrompt)
	assert.Contains(t, ack.Text, "101")
	assert.Equal(t, moviesMenu, ack.Options)
	assert.False(t, f.router.InSession(adminID))

	m, ok := f.reg.FindMovie("101")
	require.True(t, ok)
	assert.Equal(t, registry.MediaVideo, m.MediaType)
	assert.Equal(t, "Alien", m.Caption)
}

func TestBackCancelsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.Handle(ctx, adminID, text(LabelAddAdmin))
	require.NoError(t, err)
	replies, err := f.router.Handle(ctx, adminID, text(LabelBack))
	require.NoError(t, err)
	assert.Contains(t, lastText(t, replies), textCancelled)
	assert.False(t, f.router.InSession(adminID))
	assert.Equal(t, []int64{adminID}, f.reg.ListAdmins())

	replies = f.router.Cancel(ctx, adminID)
	assert.Equal(t, textAdminMenu, lastText(t, replies))
	assert.Equal(t, textNothingToStop, lastText(t, f.router.Cancel(ctx, userID)))
}

func TestNavigationDuringWorkflowCancelsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.Handle(ctx, adminID, text(LabelAddChannel))
	require.NoError(t, err)
	replies, err := f.router.Handle(ctx, adminID, text(LabelChannels))
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, textPrevCancelled, lastText(t, replies[:1]))
	assert.Contains(t, lastText(t, replies), "@kino_club")
	assert.False(t, f.router.InSession(adminID))
}

func TestRevokedAdminLosesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddAdmin(ctx, 7))

	_, err := f.router.Handle(ctx, 7, text(LabelDeleteMovie))
	require.NoError(t, err)
	_, err = f.reg.DeleteAdmin(ctx, 7)
	require.NoError(t, err)

	replies, err := f.router.Handle(ctx, 7, text("007"))
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.False(t, f.router.InSession(7))
}

func TestMediaOutsideSessionIgnored(t *testing.T) {
	f := newFixture(t)
	replies, err := f.router.Handle(context.Background(), adminID, chat.MediaInput{
		Media: chat.Media{Kind: chat.MediaVideo, Token: "x"},
	})
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestStatsAndAdminList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddAdmin(ctx, 55))

	assert.Contains(t, lastText(t, f.router.Stats(ctx, adminID)), "👑 Admins: 2")

	replies, err := f.router.Handle(ctx, adminID, text(LabelListAdmins))
	require.NoError(t, err)
	assert.Equal(t, "👑 Admins:\n1\n55", lastText(t, replies))
}

func TestCheckSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	replies := f.router.CheckSubscription(ctx, userID)
	prompt, ok := replies[0].(chat.SubscribePrompt)
	require.True(t, ok)
	assert.Equal(t, textNotSubscribed, prompt.Text)

	f.oracle.set(userID, gate.StatusCreator)
	assert.Equal(t, textSubConfirmed, lastText(t, f.router.CheckSubscription(ctx, userID)))
}
