package session

import (
	"github.com/m3rciful/chatloop/core/telegram/classify"

	tele "gopkg.in/telebot.v4"
)

// NoChat is the session key shared by updates that carry no chat.
const NoChat int64 = 0

// Envelope describes the current event of a handler invocation.
// The instance handed to a handler is updated in place by every wait helper,
// so the handler always reads the latest event through the same pointer.
type Envelope struct {
	Kind         classify.EventKind
	Message      *tele.Message
	CallbackData string
	Update       tele.Update
	Chat         *tele.Chat
	Key          int64

	box *mailbox
}

// NewEnvelope classifies upd into a detached envelope keyed by its chat.
func NewEnvelope(upd tele.Update) *Envelope {
	env := &Envelope{
		Kind:         classify.Kind(upd),
		Message:      classify.Message(upd),
		CallbackData: classify.CallbackData(upd),
		Update:       upd,
		Chat:         classify.Chat(upd),
		Key:          NoChat,
	}
	if env.Chat != nil {
		env.Key = env.Chat.ID
	}
	return env
}

// Category reports the content category of the current message.
func (e *Envelope) Category() classify.MsgCategory {
	return classify.Category(e.Message)
}

// Sender returns the user behind the current event.
func (e *Envelope) Sender() *tele.User {
	return classify.Sender(e.Update)
}

// Callback returns the current callback query or nil.
func (e *Envelope) Callback() *tele.Callback {
	if e.Kind != classify.KindCallbackQuery {
		return nil
	}
	return e.Update.Callback
}

// Text returns the text of the current message, if any.
func (e *Envelope) Text() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Text
}

func (e *Envelope) assign(next *Envelope) {
	box := e.box
	*e = *next
	e.box = box
}
