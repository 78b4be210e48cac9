package gate

import (
	"context"
	"errors"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// ErrUnbound is returned while the Telegram oracle has no bot attached.
var ErrUnbound = errors.New("gate: telegram oracle is not bound to a bot")

// MemberLookup is the part of *tele.Bot the oracle needs.
type MemberLookup interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

type chatRef string

func (c chatRef) Recipient() string { return string(c) }

// TelegramOracle asks the Bot API for a user's role in a channel.
type TelegramOracle struct {
	mu  sync.RWMutex
	api MemberLookup
}

// NewTelegramOracle returns an oracle; api may be nil and attached later with Bind.
func NewTelegramOracle(api MemberLookup) *TelegramOracle {
	return &TelegramOracle{api: api}
}

// Bind attaches the bot once it exists.
func (o *TelegramOracle) Bind(api MemberLookup) {
	o.mu.Lock()
	o.api = api
	o.mu.Unlock()
}

// MembershipStatus implements Oracle. The Bot API call is not cancellable, so a
// context deadline abandons the call and reports the context error.
func (o *TelegramOracle) MembershipStatus(ctx context.Context, channel string, userID int64) (Status, error) {
	o.mu.RLock()
	api := o.api
	o.mu.RUnlock()
	if api == nil {
		return StatusUnknown, ErrUnbound
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return StatusUnknown, errors.New("gate: empty channel id")
	}

	type result struct {
		member *tele.ChatMember
		err    error
	}
	done := make(chan result, 1)
	go func() {
		m, err := api.ChatMemberOf(chatRef(channel), tele.ChatID(userID))
		done <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return StatusUnknown, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return StatusUnknown, r.err
		}
		if r.member == nil {
			return StatusUnknown, errors.New("gate: empty chat member")
		}
		return statusFromRole(r.member.Role), nil
	}
}

func statusFromRole(role tele.MemberStatus) Status {
	switch role {
	case tele.Creator:
		return StatusCreator
	case tele.Administrator:
		return StatusAdministrator
	case tele.Member:
		return StatusMember
	case tele.Restricted:
		return StatusRestricted
	case tele.Left:
		return StatusLeft
	case tele.Kicked:
		return StatusKicked
	}
	return StatusUnknown
}
