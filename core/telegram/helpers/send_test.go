package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type recordingContext struct {
	tele.Context
	store map[string]interface{}
	sent  []interface{}
}

func (r *recordingContext) Get(key string) interface{}    { return r.store[key] }
func (r *recordingContext) Set(key string, v interface{}) { r.store[key] = v }
func (r *recordingContext) Update() tele.Update           { return tele.Update{ID: 5} }
func (r *recordingContext) Chat() *tele.Chat              { return &tele.Chat{ID: 3} }
func (r *recordingContext) Sender() *tele.User            { return &tele.User{ID: 4} }
func (r *recordingContext) Send(what interface{}, _ ...interface{}) error {
	r.sent = append(r.sent, what)
	return nil
}

func TestSendTextRunsInlineWithoutDispatcher(t *testing.T) {
	SetDispatcher(nil)
	c := &recordingContext{store: map[string]interface{}{}}
	require.NoError(t, SendText(c, "hello"))
	assert.Equal(t, []interface{}{"hello"}, c.sent)
}

func TestBuildContextIsCached(t *testing.T) {
	c := &recordingContext{store: map[string]interface{}{}}
	first := BuildContext(c)
	assert.Equal(t, first, BuildContext(c))

	ctx := WithHandler(c, "text.lookup")
	stored, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, ctx, stored)
}
