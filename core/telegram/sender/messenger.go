package sender

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/chatloop/core/logger"

	tele "gopkg.in/telebot.v4"
)

// API is the part of *tele.Bot the messenger calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Messenger sends messages for conversations. Send and Edit block and
// return the resulting message; SendAsync and AnswerCallback go through
// the outbox.
type Messenger struct {
	api    API
	outbox *Outbox
	opts   Options
}

// NewMessenger binds api and outbox. The outbox may be shared with other callers.
func NewMessenger(api API, outbox *Outbox, opts Options) *Messenger {
	return &Messenger{api: api, outbox: outbox, opts: opts.withDefaults()}
}

// Send delivers what to the chat and returns the sent message.
func (m *Messenger) Send(ctx context.Context, to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var sent *tele.Message
	err := call(ctx, m.opts, "send", func(context.Context) error {
		msg, err := m.api.Send(to, what, opts...)
		if err != nil {
			return err
		}
		sent = msg
		return nil
	})
	return sent, err
}

// Edit replaces the content of msg.
func (m *Messenger) Edit(ctx context.Context, msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var edited *tele.Message
	err := call(ctx, m.opts, "edit", func(context.Context) error {
		out, err := m.api.Edit(msg, what, opts...)
		if err != nil {
			return err
		}
		edited = out
		return nil
	})
	return edited, err
}

// SendAsync queues a message without waiting for the result.
func (m *Messenger) SendAsync(ctx context.Context, to tele.Recipient, what interface{}, opts ...interface{}) error {
	return m.enqueue(ctx, "send", func(context.Context) error {
		_, err := m.api.Send(to, what, opts...)
		return err
	})
}

// AnswerCallback acknowledges a callback query in the background. A nil
// resp sends an empty answer that only stops the client spinner.
func (m *Messenger) AnswerCallback(ctx context.Context, cb *tele.Callback, resp *tele.CallbackResponse) {
	if cb == nil {
		return
	}
	run := func(context.Context) error {
		if resp == nil {
			return m.api.Respond(cb)
		}
		return m.api.Respond(cb, resp)
	}
	if err := m.enqueue(ctx, "answer_callback", run); err != nil {
		logger.Warn(ctx, logger.CompSender, "callback.answer.skip",
			slog.String("status", "skip"),
			slog.String("cb_data", logger.SanitizeLimit(cb.Data, 64)),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Messenger) enqueue(ctx context.Context, action string, run func(context.Context) error) error {
	if m.outbox == nil {
		return errors.New("telegram sender: no outbox")
	}
	return m.outbox.Enqueue(ctx, action, run)
}
