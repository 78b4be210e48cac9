package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	update tele.Update
	store  map[string]interface{}
	sent   []interface{}
}

func newFakeContext(userID int64, upd tele.Update) *fakeContext {
	if upd.Message == nil && upd.Callback == nil {
		upd.Message = &tele.Message{Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}}
	}
	return &fakeContext{update: upd, store: map[string]interface{}{}}
}

func (f *fakeContext) Update() tele.Update { return f.update }

func (f *fakeContext) Sender() *tele.User {
	if f.update.Callback != nil {
		return f.update.Callback.Sender
	}
	return f.update.Message.Sender
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.update.Message != nil {
		return f.update.Message.Chat
	}
	return nil
}

func (f *fakeContext) Text() string {
	if f.update.Message != nil {
		return f.update.Message.Text
	}
	return ""
}

func (f *fakeContext) Get(key string) interface{} { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }
func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

type admins map[int64]bool

func (a admins) IsAdmin(id int64) bool { return a[id] }

func TestAdminOnlyMiddleware(t *testing.T) {
	var rejected, passed int
	mw := AdminOnlyMiddleware(AdminOptions{
		Admins:   admins{1: true},
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(newFakeContext(1, tele.Update{ID: 1})))
	require.NoError(t, h(newFakeContext(2, tele.Update{ID: 2})))
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, rejected)
}

func TestRateLimitMiddleware(t *testing.T) {
	var limited, passed int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(newFakeContext(7, tele.Update{ID: 1})))
	require.NoError(t, h(newFakeContext(7, tele.Update{ID: 2})))
	require.NoError(t, h(newFakeContext(8, tele.Update{ID: 3})))
	cb := tele.Update{ID: 4, Callback: &tele.Callback{Sender: &tele.User{ID: 7}}}
	require.NoError(t, h(newFakeContext(7, cb)))

	assert.Equal(t, 3, passed)
	assert.Equal(t, 1, limited)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newFakeContext(1, tele.Update{ID: 9}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	want := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return want })
	assert.ErrorIs(t, h(newFakeContext(1, tele.Update{ID: 10})), want)
}

func TestMessageMetricsMiddlewareCounts(t *testing.T) {
	c := newFakeContext(1, tele.Update{ID: 11})
	h := MessageMetricsMiddleware(LoggerMiddleware(func(c tele.Context) error {
		if err := c.Send("one"); err != nil {
			return err
		}
		return c.Send("two", &tele.ReplyMarkup{})
	}))
	require.NoError(t, h(c))

	msgs, kb := GetCounters(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	assert.Equal(t, "11:1:1", c.Get("rid"))
}
