// Package keyboard builds reply and inline markups. Inline buttons carry
// their callback data verbatim so conversations can compare it directly.
package keyboard

import (
	"github.com/m3rciful/chatloop/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn describes one inline button. With Unique set the callback data
// becomes "unique|data".
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

// Button is a shorthand for a data button.
func Button(text, data string) InlineBtn {
	return InlineBtn{Text: text, Data: data}
}

func (b InlineBtn) inline() tele.InlineButton {
	if b.URL != "" {
		return tele.InlineButton{Text: b.Text, URL: b.URL}
	}
	return tele.InlineButton{Text: b.Text, Data: callbacks.Encode(b.Unique, b.Data)}
}

// Inline builds an inline keyboard from rows of buttons.
func Inline(rows ...[]InlineBtn) *tele.ReplyMarkup {
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for i, b := range row {
			r[i] = b.inline()
		}
		keyboard = append(keyboard, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

// Row places all buttons on a single row.
func Row(buttons ...InlineBtn) *tele.ReplyMarkup {
	return Inline(buttons)
}

// Grid splits buttons into rows of up to n; n <= 1 puts each on its own row.
func Grid(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	if n < 1 {
		n = 1
	}
	var rows [][]InlineBtn
	for len(buttons) > 0 {
		end := min(n, len(buttons))
		rows = append(rows, buttons[:end])
		buttons = buttons[end:]
	}
	return Inline(rows...)
}

// ReplyButtons builds a resized reply keyboard from rows of labels.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// RemoveKeyboard returns a markup that hides the reply keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ForceReply asks the client to open a reply to the message.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}
