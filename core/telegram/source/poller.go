package source

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/chatloop/core/config"

	tele "gopkg.in/telebot.v4"
)

// DefaultLongPollTimeout applies when the config leaves the timeout at zero.
const DefaultLongPollTimeout = 10 * time.Second

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode         string
	LongPollTimeout time.Duration
	AllowedUpdates  []string
	DropPending     bool

	WebhookListen string
	WebhookURL    string
	SecretToken   string
}

// OptionsFromConfig maps the telegram and webhook sections onto PollerOptions.
func OptionsFromConfig(cfg *coreconfig.Config) PollerOptions {
	return PollerOptions{
		RunMode:         cfg.Telegram.RunMode,
		LongPollTimeout: time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
		AllowedUpdates:  cfg.Telegram.AllowedUpdates,
		DropPending:     cfg.Telegram.DropPending,
		WebhookListen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
		WebhookURL:      cfg.Webhook.URL,
		SecretToken:     cfg.Webhook.SecretToken,
	}
}

// BuildPoller returns a long poller or a webhook listener. The webhook is
// not registered by the poller itself; EnsureWebhook does that.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:           opts.WebhookListen,
			AllowedUpdates:   opts.AllowedUpdates,
			DropUpdates:      opts.DropPending,
			SecretToken:      opts.SecretToken,
			IgnoreSetWebhook: true,
			Endpoint:         &tele.WebhookEndpoint{PublicURL: opts.WebhookURL},
		}
	}

	timeout := opts.LongPollTimeout
	if timeout <= 0 {
		timeout = DefaultLongPollTimeout
	}
	return &tele.LongPoller{
		Timeout:        timeout,
		AllowedUpdates: opts.AllowedUpdates,
	}
}
