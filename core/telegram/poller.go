package telegram

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/kinobot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeoutSeconds = 10

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// AllowedUpdates limits the update kinds Telegram delivers; empty means all.
	AllowedUpdates []string
}

// BuildPoller returns a webhook poller for RunModeWebhook and a long poller otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
			AllowedUpdates: opts.AllowedUpdates,
		}
	}
	return &tele.LongPoller{
		Timeout:        time.Duration(pollTimeoutSeconds(opts.LongPollTimeoutSeconds)) * time.Second,
		AllowedUpdates: opts.AllowedUpdates,
	}
}
