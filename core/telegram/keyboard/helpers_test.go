package keyboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyButtonsSkipsEmptyRows(t *testing.T) {
	m := ReplyButtons([]string{"🎬 Movies", "📢 Channels"}, nil, []string{"🔙 Back"})
	require.True(t, m.ResizeKeyboard)
	require.Len(t, m.ReplyKeyboard, 2)
	require.Equal(t, "📢 Channels", m.ReplyKeyboard[0][1].Text)
	require.Equal(t, "🔙 Back", m.ReplyKeyboard[1][0].Text)
}

func TestLinksWithAction(t *testing.T) {
	m := LinksWithAction(
		[]LinkBtn{{Text: "@kino", URL: "https://t.me/kino"}, {Text: "@news", URL: "https://t.me/news"}},
		DataBtn{Text: "✅ Check", Unique: "check_sub"},
	)
	require.Len(t, m.InlineKeyboard, 3)
	require.Equal(t, "https://t.me/kino", m.InlineKeyboard[0][0].URL)
	require.Equal(t, "check_sub", m.InlineKeyboard[2][0].Unique)
}

func TestChannelURL(t *testing.T) {
	u, ok := ChannelURL(" @kino_club ")
	require.True(t, ok)
	require.Equal(t, "https://t.me/kino_club", u)

	_, ok = ChannelURL("-1001234567")
	require.False(t, ok)
	_, ok = ChannelURL("@")
	require.False(t, ok)
}
