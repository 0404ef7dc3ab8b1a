package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/chatloop/core/logger"

	tele "gopkg.in/telebot.v4"
)

// WebhookAPI is the part of *tele.Bot that manages webhook registration.
type WebhookAPI interface {
	Webhook() (*tele.Webhook, error)
	SetWebhook(w *tele.Webhook) error
	RemoveWebhook(dropPending ...bool) error
}

// WebhookStatus reports the registration seen by Telegram.
type WebhookStatus struct {
	URL        string
	Registered bool
	Pending    int
	LastError  string
	LastErrAt  time.Time
}

func (s WebhookStatus) String() string {
	var b strings.Builder
	if s.Registered {
		fmt.Fprintf(&b, "webhook registered at %s", s.URL)
	} else {
		fmt.Fprintf(&b, "webhook at %s already registered", s.URL)
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "; last error %s: %s", s.LastErrAt.UTC().Format(time.RFC3339), s.LastError)
	}
	return b.String()
}

// EnsureWebhook registers hook when Telegram knows a different URL and
// returns the state reported before the change.
func EnsureWebhook(ctx context.Context, api WebhookAPI, hook *tele.Webhook) (WebhookStatus, error) {
	if hook == nil || hook.Endpoint == nil || hook.Endpoint.PublicURL == "" {
		return WebhookStatus{}, fmt.Errorf("source: webhook without public url")
	}
	want := hook.Endpoint.PublicURL

	info, err := api.Webhook()
	if err != nil {
		return WebhookStatus{}, fmt.Errorf("source: get webhook info: %w", err)
	}
	status := WebhookStatus{URL: want}
	if info != nil {
		status.Pending = info.PendingUpdates
		status.LastError = info.ErrorMessage
		if info.ErrorUnixtime > 0 {
			status.LastErrAt = time.Unix(info.ErrorUnixtime, 0)
		}
	}

	current := ""
	if info != nil && info.Endpoint != nil {
		current = info.Endpoint.PublicURL
	}
	if current != want {
		if err := api.SetWebhook(hook); err != nil {
			return status, fmt.Errorf("source: set webhook: %w", err)
		}
		status.Registered = true
	}

	level := slog.LevelInfo
	if status.LastError != "" {
		level = slog.LevelWarn
	}
	logger.Event(ctx, logger.CompSource, level, "webhook.ensure",
		slog.String("status", "ok"),
		slog.String("public_url", want),
		slog.Bool("registered", status.Registered),
		slog.Int("pending", status.Pending),
		slog.String("cause", status.LastError),
	)
	return status, nil
}

// DeleteWebhook clears any registered webhook so long polling can start.
func DeleteWebhook(ctx context.Context, api WebhookAPI, dropPending bool) error {
	if err := api.RemoveWebhook(dropPending); err != nil {
		logger.Warn(ctx, logger.CompSource, "webhook.delete",
			slog.String("status", "fail"),
			slog.String("mode", "longpoll"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("source: delete webhook: %w", err)
	}
	logger.Info(ctx, logger.CompSource, "webhook.delete",
		slog.String("status", "ok"),
		slog.String("mode", "longpoll"),
		slog.Bool("drop_pending", dropPending),
	)
	return nil
}
