// Package telegram composes the bot runtime: update source, dispatcher,
// per-chat sessions and the outbound messenger.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/chatloop/core/config"
	"github.com/m3rciful/chatloop/core/dispatch"
	"github.com/m3rciful/chatloop/core/logger"
	"github.com/m3rciful/chatloop/core/session"
	"github.com/m3rciful/chatloop/core/telegram/commands"
	tgsender "github.com/m3rciful/chatloop/core/telegram/sender"
	"github.com/m3rciful/chatloop/core/telegram/source"

	tele "gopkg.in/telebot.v4"
)

// HandlerFactory builds the conversation handler once the runtime exists,
// so the handler can hold the messenger and the bot identity.
type HandlerFactory func(rt Runtime) (session.Handler, error)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config     *coreconfig.Config
	NewHandler HandlerFactory
	Menu       *commands.Menu
	Observer   session.TurnObserver

	// Poller replaces the poller derived from Config.
	Poller tele.Poller
	// Offline skips the getMe call at startup.
	Offline bool

	DisableWebhookCleanup bool
	SourceBuffer          int

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to the handler factory and lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Messenger  *tgsender.Messenger
	Outbox     *tgsender.Outbox
	Menu       *commands.Menu
	Sessions   *session.Registry
	Dispatcher *dispatch.Dispatcher
}

// Username returns the bot username, or "" when unknown.
func (rt Runtime) Username() string {
	if rt.Bot == nil || rt.Bot.Me == nil {
		return ""
	}
	return rt.Bot.Me.Username
}

// SenderOptions maps the sender section onto outbox options.
func SenderOptions(cfg coreconfig.SenderConfig) tgsender.Options {
	return tgsender.Options{
		QueueSize:    cfg.QueueSize,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	}
}

// RunTelegram composes and runs the bot until ctx is done. Shutdown stops
// the source first, then waits for running turns, then drains the outbox.
func RunTelegram(ctx context.Context, opts RunOptions) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.NewHandler == nil {
		return fmt.Errorf("telegram: nil handler factory")
	}
	cfg := opts.Config

	pollOpts := source.OptionsFromConfig(cfg)
	poller := opts.Poller
	if poller == nil {
		poller = source.BuildPoller(pollOpts)
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  source.NewHTTPClient(pollOpts.LongPollTimeout),
		Offline: opts.Offline,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, poller, bot, time.Since(buildStart))

	if err := prepareSource(ctx, bot, poller, cfg, opts.DisableWebhookCleanup); err != nil {
		return err
	}

	senderOpts := SenderOptions(cfg.Sender)
	outbox := tgsender.NewOutbox(senderOpts)
	messenger := tgsender.NewMessenger(bot, outbox, senderOpts)

	rt := Runtime{
		Bot:       bot,
		Messenger: messenger,
		Outbox:    outbox,
		Menu:      opts.Menu,
	}
	handler, err := opts.NewHandler(rt)
	if err != nil {
		outbox.Close()
		return fmt.Errorf("telegram: build handler: %w", err)
	}

	// runCtx also ends when the source fails, so suspended turns are released.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runner := session.NewRunner(runCtx, handler, session.RunnerOptions{
		Answerer: messenger,
		Observer: opts.Observer,
	})
	rt.Sessions = session.NewRegistry(runner)
	rt.Dispatcher = dispatch.New(rt.Sessions)

	if opts.Menu != nil && len(opts.Menu.List(true)) > 0 {
		// A stale menu does not prevent the bot from serving updates.
		_ = opts.Menu.Publish(ctx, bot)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			outbox.Close()
			return err
		}
	}

	runErr := source.New(poller, opts.SourceBuffer).Run(runCtx, bot, rt.Dispatcher)
	cancelRun()
	runner.Wait()

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	outbox.Close()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	status, level := "ok", slog.LevelInfo
	if runErr != nil {
		status, level = "fail", slog.LevelError
	}
	stats := rt.Dispatcher.Stats()
	sent, failed := outbox.Stats()
	logger.Event(context.Background(), logger.CompTG, level, "runtime.stop",
		slog.String("status", status),
		slog.Uint64("accepted", stats.Accepted),
		slog.Uint64("dropped", stats.Dropped),
		slog.Int("chats", rt.Sessions.Len()),
		slog.Uint64("sent", sent),
		slog.Uint64("failed", failed),
	)
	return errors.Join(runErr, stopErr)
}

func prepareSource(ctx context.Context, bot *tele.Bot, poller tele.Poller, cfg *coreconfig.Config, skipCleanup bool) error {
	switch p := poller.(type) {
	case *tele.Webhook:
		status, err := source.EnsureWebhook(ctx, bot, p)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		logger.Debug(ctx, logger.CompTG, "webhook.status", slog.String("payload", status.String()))
	case *tele.LongPoller:
		if skipCleanup || !strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
			return nil
		}
		// Long polling is refused while a webhook is set; a failed delete is
		// reported by getUpdates later.
		_ = source.DeleteWebhook(ctx, bot, cfg.Telegram.DropPending)
	}
	return nil
}

func logMode(ctx context.Context, poller tele.Poller, bot *tele.Bot, took time.Duration) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if bot.Me != nil && bot.Me.Username != "" {
		attrs = append(attrs, slog.String("username", bot.Me.Username))
	}
	switch p := poller.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		)
	default:
		attrs = append(attrs, slog.String("mode", "custom"))
	}
	logger.Event(ctx, logger.CompTG, slog.LevelInfo, "bot.mode", attrs...)
}
