// Package dispatch turns the raw update stream into per-chat deliveries.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/chatloop/core/logger"
	"github.com/m3rciful/chatloop/core/session"

	tele "gopkg.in/telebot.v4"
)

const component = "dispatch"

// Deliverer receives classified envelopes keyed by chat.
type Deliverer interface {
	Deliver(key int64, env *session.Envelope)
}

// Stats counts processed updates.
type Stats struct {
	Accepted uint64
	Dropped  uint64
	LastSeen int
}

// Dispatcher drops re-delivered updates and forwards the rest in source order.
type Dispatcher struct {
	sink Deliverer

	mu       sync.Mutex
	lastSeen int
	accepted uint64
	dropped  uint64
}

// New creates a Dispatcher delivering into sink.
func New(sink Deliverer) *Dispatcher {
	return &Dispatcher{sink: sink, lastSeen: -1}
}

// Ingest processes one update. It returns false when the update id is not
// greater than the last accepted one and the update was dropped.
func (d *Dispatcher) Ingest(upd tele.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if upd.ID <= d.lastSeen {
		d.dropped++
		if logger.ShouldSampleDebug() {
			logger.Debug(context.Background(), component, "update.duplicate",
				slog.String("status", "skip"),
				slog.Int("update_id", upd.ID),
				slog.Int("last_seen", d.lastSeen),
			)
		}
		return false
	}
	d.lastSeen = upd.ID
	d.accepted++

	env := session.NewEnvelope(upd)
	if logger.ShouldSampleDebug() {
		ctx := logger.WithUpdateMeta(context.Background(), upd.ID, senderID(env), env.Key)
		logger.Debug(ctx, component, "update.received",
			slog.String("status", "ok"),
			slog.String("kind", env.Kind.String()),
			slog.String("category", env.Category().String()),
			slog.String("payload", logger.SanitizeLimit(env.Text(), 256)),
		)
	}
	d.sink.Deliver(env.Key, env)
	return true
}

// LastSeen returns the highest accepted update id, or -1.
func (d *Dispatcher) LastSeen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Accepted: d.accepted, Dropped: d.dropped, LastSeen: d.lastSeen}
}

func senderID(env *session.Envelope) int64 {
	if u := env.Sender(); u != nil {
		return u.ID
	}
	return 0
}
