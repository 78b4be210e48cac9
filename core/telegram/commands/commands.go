// Package commands describes slash commands registered with the bot.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command binds a slash command to its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run behind the admin check and stay out of the public menu.
	AdminOnly bool
	Hidden    bool
	// Aliases may be given with or without the leading slash.
	Aliases []string
}

// Public reports whether the command belongs in the Telegram command menu.
func (c Command) Public() bool {
	return !c.Hidden && !c.AdminOnly
}

// HasAlias reports whether name (with a leading slash) is one of the aliases.
func (c Command) HasAlias(name string) bool {
	for _, alias := range c.Aliases {
		if "/"+strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}
