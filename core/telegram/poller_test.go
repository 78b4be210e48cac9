package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	allowed := []string{"message", "callback_query"}

	lp, ok := BuildPoller(PollerOptions{RunMode: "longpoll", AllowedUpdates: allowed}).(*tele.LongPoller)
	require.True(t, ok)
	require.Equal(t, defaultPollTimeoutSeconds*time.Second, lp.Timeout)
	require.Equal(t, allowed, lp.AllowedUpdates)

	wh, ok := BuildPoller(PollerOptions{
		RunMode: " Webhook ",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook"},
	}).(*tele.Webhook)
	require.True(t, ok)
	require.Equal(t, "0.0.0.0:8443", wh.Listen)
	require.Equal(t, "https://bot.example.com/hook", wh.Endpoint.PublicURL)
}
