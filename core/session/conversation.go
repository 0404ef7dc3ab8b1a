package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/chatloop/core/telegram/classify"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrLeftChat aborts a conversation after the bot was removed from the chat.
	ErrLeftChat = errors.New("session: the chat was left")
	// ErrCancelled wraps the context error of an abandoned wait.
	ErrCancelled = errors.New("session: wait cancelled")
	// ErrNotCallback is returned by ReplyCallback outside a callback query.
	ErrNotCallback = errors.New("session: current event is not a callback query")
	// ErrDetached is returned for envelopes that were never delivered through a Registry.
	ErrDetached = errors.New("session: envelope is not bound to a chat")
)

// NextEvent suspends until the next update of the chat is available, copies
// it into env and returns its kind. The returned error wraps both
// ErrCancelled and the context error when ctx is done first.
func NextEvent(ctx context.Context, env *Envelope) (classify.EventKind, error) {
	if env == nil || env.box == nil {
		return classify.KindNone, ErrDetached
	}
	next, err := env.box.wait(ctx)
	if err != nil {
		return classify.KindNone, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	env.assign(next)
	return env.Kind, nil
}

// NextMessage waits for a new text, media or sticker message. Callback
// queries met on the way are acknowledged and skipped.
func NextMessage(ctx context.Context, env *Envelope) (classify.MsgCategory, error) {
	for {
		kind, err := NextEvent(ctx, env)
		if err != nil {
			return classify.CategoryOther, err
		}
		switch kind {
		case classify.KindNewMessage:
			switch cat := env.Category(); cat {
			case classify.CategoryText, classify.CategoryMediaOrDoc, classify.CategoryStickerOrDice:
				return cat, nil
			}
		case classify.KindCallbackQuery:
			env.box.runner.answer(ctx, env.Update.Callback, nil)
		case classify.KindOtherUpdate:
			if classify.LeftChat(env.Update) {
				return classify.CategoryOther, ErrLeftChat
			}
		}
	}
}

// NextTextMessage waits for a new text message and returns its text.
func NextTextMessage(ctx context.Context, env *Envelope) (string, error) {
	for {
		cat, err := NextMessage(ctx, env)
		if err != nil {
			return "", err
		}
		if cat == classify.CategoryText {
			return env.Message.Text, nil
		}
	}
}

// ButtonClicked waits for a click on a button of expected and returns its
// callback data. Clicks on other messages are acknowledged and skipped.
// A nil expected accepts a click on any message.
func ButtonClicked(ctx context.Context, env *Envelope, expected *tele.Message) (string, error) {
	for {
		kind, err := NextEvent(ctx, env)
		if err != nil {
			return "", err
		}
		switch kind {
		case classify.KindCallbackQuery:
			if expected != nil && (env.Message == nil || env.Message.ID != expected.ID) {
				env.box.runner.answer(ctx, env.Update.Callback, nil)
				continue
			}
			return env.CallbackData, nil
		case classify.KindOtherUpdate:
			if classify.LeftChat(env.Update) {
				return "", ErrLeftChat
			}
		}
	}
}

// ReplyCallback answers the callback query held by env.
func ReplyCallback(ctx context.Context, env *Envelope, text string, showAlert bool, url string) error {
	if env == nil || env.Callback() == nil {
		return ErrNotCallback
	}
	if env.box == nil {
		return ErrDetached
	}
	env.box.runner.answer(ctx, env.Update.Callback, &tele.CallbackResponse{
		Text:      text,
		ShowAlert: showAlert,
		URL:       url,
	})
	return nil
}
