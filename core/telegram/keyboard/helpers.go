// Package keyboard builds reply and inline markups.
package keyboard

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// LinkBtn is an inline button that opens a URL.
type LinkBtn struct {
	Text string
	URL  string
}

// DataBtn is an inline button that sends callback data.
type DataBtn struct {
	Text   string
	Unique string
	Data   string
}

// RemoveKeyboard returns a markup that hides the reply keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a resized reply keyboard from rows of labels. Empty rows are skipped.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// LinksWithAction stacks one URL button per row and puts the action button last.
func LinksWithAction(links []LinkBtn, action DataBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(links)+1)
	for _, l := range links {
		rows = append(rows, markup.Row(markup.URL(l.Text, l.URL)))
	}
	if action.Text != "" {
		rows = append(rows, markup.Row(markup.Data(action.Text, action.Unique, action.Data)))
	}
	markup.Inline(rows...)
	return markup
}

// ChannelURL turns "@handle" into a t.me link. Numeric chat ids have no public URL.
func ChannelURL(channel string) (string, bool) {
	channel = strings.TrimSpace(channel)
	if !strings.HasPrefix(channel, "@") || len(channel) < 2 {
		return "", false
	}
	return "https://t.me/" + channel[1:], true
}
