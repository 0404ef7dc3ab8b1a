// Package source pulls updates from Telegram, by long polling or through a
// webhook listener, and hands them one at a time to a sink.
package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/chatloop/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Sink consumes updates in arrival order.
type Sink interface {
	Ingest(upd tele.Update) bool
}

// Source drives a telebot poller without telebot's own handler routing.
type Source struct {
	poller tele.Poller
	buffer int
}

// New wraps poller. buffer sizes the channel between the poller and Run.
func New(poller tele.Poller, buffer int) *Source {
	if buffer <= 0 {
		buffer = 100
	}
	return &Source{poller: poller, buffer: buffer}
}

// ErrPollerStopped is returned by Run when the poller exits on its own
// before ctx is done, as a webhook listener does when its address is taken.
var ErrPollerStopped = errors.New("source: poller exited before shutdown")

// Run feeds sink until ctx is done, then stops the poller and ingests what
// it already fetched. It returns after the poller has exited: ctx.Err() on
// shutdown, ErrPollerStopped when the poller quit first.
func (s *Source) Run(ctx context.Context, bot *tele.Bot, sink Sink) error {
	updates := make(chan tele.Update, s.buffer)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.poller.Poll(bot, updates, stop)
	}()

	mode := modeOf(s.poller)
	logger.Info(ctx, logger.CompSource, "source.start",
		slog.String("status", "ok"),
		slog.String("mode", mode),
	)

	var accepted, dropped int
	ingest := func(upd tele.Update) {
		if sink.Ingest(upd) {
			accepted++
		} else {
			dropped++
		}
	}

	ctxDone := ctx.Done()
	for {
		select {
		case upd := <-updates:
			ingest(upd)
		case <-ctxDone:
			close(stop)
			ctxDone = nil
		case <-done:
			var err error
			if ctxDone != nil {
				close(stop)
				err = ErrPollerStopped
			} else {
				err = ctx.Err()
			}
			for {
				select {
				case upd := <-updates:
					ingest(upd)
				default:
					attrs := []slog.Attr{
						slog.String("mode", mode),
						slog.Int("count", accepted),
						slog.Int("dropped", dropped),
					}
					if errors.Is(err, ErrPollerStopped) {
						logger.Error(context.Background(), logger.CompSource, "source.stop", append(attrs,
							slog.String("status", "fail"),
							slog.String("err", err.Error()),
						)...)
					} else {
						logger.Info(context.Background(), logger.CompSource, "source.stop", append(attrs,
							slog.String("status", "ok"),
						)...)
					}
					return err
				}
			}
		}
	}
}

func modeOf(p tele.Poller) string {
	switch p.(type) {
	case *tele.Webhook:
		return "webhook"
	case *tele.LongPoller:
		return "longpoll"
	}
	return "custom"
}
