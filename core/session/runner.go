package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/chatloop/core/logger"
	"github.com/m3rciful/chatloop/core/telegram/classify"

	tele "gopkg.in/telebot.v4"
)

const component = "session"

// Handler holds the four top-level entry points. Each call is one turn of
// the conversation with a chat and returns when the turn is over.
type Handler interface {
	OnPrivate(ctx context.Context, chat *tele.Chat, user *tele.User, env *Envelope) error
	OnGroup(ctx context.Context, chat *tele.Chat, env *Envelope) error
	OnChannel(ctx context.Context, chat *tele.Chat, env *Envelope) error
	OnOther(ctx context.Context, env *Envelope) error
}

// BaseHandler ignores every event. Embed it to implement only some entries.
type BaseHandler struct{}

func (BaseHandler) OnPrivate(context.Context, *tele.Chat, *tele.User, *Envelope) error { return nil }
func (BaseHandler) OnGroup(context.Context, *tele.Chat, *Envelope) error              { return nil }
func (BaseHandler) OnChannel(context.Context, *tele.Chat, *Envelope) error            { return nil }
func (BaseHandler) OnOther(context.Context, *Envelope) error                          { return nil }

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePanicked  Outcome = "panicked"
)

// TurnResult describes a finished turn.
type TurnResult struct {
	Key      int64
	TurnID   string
	UpdateID int
	Entry    classify.ChatCategory
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// TurnObserver is notified after every turn, before the backlog hand-off.
type TurnObserver func(TurnResult)

// CallbackAnswerer acknowledges callback queries. Calls must not block.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, cb *tele.Callback, resp *tele.CallbackResponse)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Answerer CallbackAnswerer
	Observer TurnObserver
}

type entryFunc func(ctx context.Context, env *Envelope) error

// Runner launches turns and hands the backlog of a chat over to the next turn.
type Runner struct {
	ctx      context.Context
	entries  map[classify.ChatCategory]entryFunc
	answerer CallbackAnswerer
	observer TurnObserver
	wg       sync.WaitGroup
}

// NewRunner builds a Runner dispatching to h. Cancelling ctx releases every
// turn suspended in a wait helper.
func NewRunner(ctx context.Context, h Handler, opts RunnerOptions) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	if h == nil {
		h = BaseHandler{}
	}
	return &Runner{
		ctx:      ctx,
		entries:  entryTable(h),
		answerer: opts.Answerer,
		observer: opts.Observer,
	}
}

func entryTable(h Handler) map[classify.ChatCategory]entryFunc {
	return map[classify.ChatCategory]entryFunc{
		classify.ChatPrivate: func(ctx context.Context, env *Envelope) error {
			return h.OnPrivate(ctx, env.Chat, env.Sender(), env)
		},
		classify.ChatGroup: func(ctx context.Context, env *Envelope) error {
			return h.OnGroup(ctx, env.Chat, env)
		},
		classify.ChatChannel: func(ctx context.Context, env *Envelope) error {
			return h.OnChannel(ctx, env.Chat, env)
		},
		classify.ChatOther: func(ctx context.Context, env *Envelope) error {
			return h.OnOther(ctx, env)
		},
	}
}

// Wait blocks until every started turn has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) start(box *mailbox, env *Envelope) {
	r.wg.Add(1)
	go r.turn(box, env)
}

// turn runs one top-level invocation, then either idles the chat or
// schedules a fresh turn for the oldest queued envelope.
func (r *Runner) turn(box *mailbox, env *Envelope) {
	defer r.wg.Done()

	res := r.invoke(env)
	r.report(res)

	if next, ok := box.handoff(); ok {
		r.start(box, next)
	}
}

func (r *Runner) invoke(env *Envelope) (res TurnResult) {
	entry := classify.ChatCategoryOf(env.Chat)
	res = TurnResult{
		Key:      env.Key,
		TurnID:   uuid.Must(uuid.NewV7()).String(),
		UpdateID: env.Update.ID,
		Entry:    entry,
	}
	ctx := r.turnContext(env, res.TurnID, entry)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomePanicked
			res.Err = fmt.Errorf("session: handler panic: %v", p)
			logger.Error(ctx, component, "turn.panic",
				slog.Any("err", p),
				slog.String("stack", string(debug.Stack())),
			)
		}
		res.Duration = time.Since(start)
	}()

	logger.Debug(ctx, component, "turn.start",
		slog.String("kind", env.Kind.String()),
		slog.String("category", env.Category().String()),
	)

	fn, ok := r.entries[entry]
	if !ok {
		fn = r.entries[classify.ChatOther]
	}
	err := fn(ctx, env)
	res.Err = err
	res.Outcome = outcomeOf(err)
	return res
}

func (r *Runner) turnContext(env *Envelope, turnID string, entry classify.ChatCategory) context.Context {
	var userID int64
	if u := env.Sender(); u != nil {
		userID = u.ID
	}
	ctx := logger.WithRID(r.ctx, logger.BuildRID(env.Update.ID, env.Key, userID))
	ctx = logger.WithUpdateMeta(ctx, env.Update.ID, userID, env.Key)
	ctx = logger.WithTurn(ctx, turnID)
	return logger.WithHandler(ctx, entry.String())
}

func (r *Runner) report(res TurnResult) {
	ctx := logger.WithTurn(logger.WithUpdateMeta(r.ctx, res.UpdateID, 0, res.Key), res.TurnID)
	attrs := []slog.Attr{
		slog.String("status", statusOf(res.Outcome)),
		slog.String("outcome", string(res.Outcome)),
		slog.String("handler", res.Entry.String()),
		slog.Duration("duration", res.Duration),
	}
	level := slog.LevelInfo
	if res.Err != nil && res.Outcome != OutcomeAborted {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(res.Err.Error(), 256)))
		if res.Outcome == OutcomeFailed || res.Outcome == OutcomePanicked {
			level = slog.LevelWarn
		}
	}
	logger.Event(ctx, component, level, "turn.done", attrs...)

	if r.observer != nil {
		r.observer(res)
	}
}

func (r *Runner) answer(ctx context.Context, cb *tele.Callback, resp *tele.CallbackResponse) {
	if cb == nil {
		return
	}
	if r.answerer == nil {
		logger.Debug(ctx, component, "callback.unanswered", slog.String("reason", "no_answerer"))
		return
	}
	r.answerer.AnswerCallback(ctx, cb, resp)
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrLeftChat):
		return OutcomeAborted
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	}
	return OutcomeFailed
}

func statusOf(o Outcome) string {
	switch o {
	case OutcomeCompleted, OutcomeAborted:
		return "ok"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "fail"
}
