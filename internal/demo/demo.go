// Package demo is the sample bot: a registration dialog in private chats
// and a button game in groups.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/chatloop/core/logger"
	"github.com/m3rciful/chatloop/core/session"
	"github.com/m3rciful/chatloop/core/telegram/classify"
	"github.com/m3rciful/chatloop/core/telegram/commands"
	"github.com/m3rciful/chatloop/core/telegram/format"
	"github.com/m3rciful/chatloop/core/telegram/keyboard"
	"github.com/m3rciful/chatloop/internal/profiles"

	tele "gopkg.in/telebot.v4"
)

const component = "demo"

// Gender button data.
const (
	GenderMale   = "🚹"
	GenderFemale = "🚺"
	GenderOther  = "⚧"
)

const wish = "I grant your wish"

// Sender is the blocking send used by the dialogs.
type Sender interface {
	Send(ctx context.Context, to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Bot implements session.Handler.
type Bot struct {
	session.BaseHandler

	send     Sender
	profiles profiles.Store
	username string
}

// New builds the sample bot. username is the bot's @name without the "@".
func New(send Sender, store profiles.Store, username string) *Bot {
	if store == nil {
		store = profiles.NewMemoryStore()
	}
	return &Bot{send: send, profiles: store, username: username}
}

// Menu lists the commands the sample bot understands.
func Menu() *commands.Menu {
	m := commands.NewMenu()
	_ = m.Register(commands.Command{Name: "start", Description: "Register your profile"})
	_ = m.Register(commands.Command{Name: "profile", Description: "Show your profile", Aliases: []string{"me"}})
	_ = m.Register(commands.Command{Name: "button", Description: "Summon a button in a group"})
	_ = m.Register(commands.Command{Name: "cancel", Description: "Abort the registration", Hidden: true})
	return m
}

// OnPrivate answers /start with the registration dialog and /profile with
// the stored answers.
func (b *Bot) OnPrivate(ctx context.Context, chat *tele.Chat, user *tele.User, env *session.Envelope) error {
	if env.Kind != classify.KindNewMessage || env.Category() != classify.CategoryText {
		return nil
	}
	switch {
	case commands.Is(env.Text(), "start", b.username):
		return b.register(ctx, chat, user, env)
	case commands.Is(env.Text(), "profile", b.username), commands.Is(env.Text(), "me", b.username):
		return b.showProfile(ctx, chat, user)
	}
	return nil
}

var errCancelled = errors.New("demo: registration cancelled")

func (b *Bot) register(ctx context.Context, chat *tele.Chat, user *tele.User, env *session.Envelope) error {
	firstName, err := b.ask(ctx, chat, env, "What is your first name?")
	if err != nil {
		return b.endDialog(ctx, chat, err)
	}
	lastName, err := b.ask(ctx, chat, env, "What is your last name?")
	if err != nil {
		return b.endDialog(ctx, chat, err)
	}

	genderMsg, err := b.send.Send(ctx, chat, "What is your gender?", keyboard.Row(
		keyboard.Button("Male", GenderMale),
		keyboard.Button("Female", GenderFemale),
		keyboard.Button("Other", GenderOther),
	))
	if err != nil {
		return fmt.Errorf("demo: ask gender: %w", err)
	}
	gender, err := session.ButtonClicked(ctx, env, genderMsg)
	if err != nil {
		return err
	}
	if err := session.ReplyCallback(ctx, env, "You clicked "+gender, false, ""); err != nil {
		return err
	}

	profile := profiles.Profile{UserID: user.ID, FirstName: firstName, LastName: lastName, Gender: gender}
	if err := b.profiles.Save(ctx, profile); err != nil {
		logger.Warn(ctx, component, "profile.save",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	text := fmt.Sprintf("Welcome, %s %s! (%s)\n\nFor more fun, try to type /button@%s in a group I'm in",
		firstName, lastName, gender, b.username)
	_, err = b.send.Send(ctx, chat, text)
	return err
}

// ask sends question and waits for the text answer. "/cancel" aborts.
func (b *Bot) ask(ctx context.Context, chat *tele.Chat, env *session.Envelope, question string) (string, error) {
	if _, err := b.send.Send(ctx, chat, question); err != nil {
		return "", fmt.Errorf("demo: ask: %w", err)
	}
	answer, err := session.NextTextMessage(ctx, env)
	if err != nil {
		return "", err
	}
	if commands.Is(answer, "cancel", b.username) {
		return "", errCancelled
	}
	return strings.TrimSpace(answer), nil
}

func (b *Bot) endDialog(ctx context.Context, chat *tele.Chat, err error) error {
	if !errors.Is(err, errCancelled) {
		return err
	}
	_, sendErr := b.send.Send(ctx, chat, "Registration cancelled.", keyboard.RemoveKeyboard())
	return sendErr
}

func (b *Bot) showProfile(ctx context.Context, chat *tele.Chat, user *tele.User) error {
	p, err := b.profiles.Get(ctx, user.ID)
	if errors.Is(err, profiles.ErrNotFound) {
		_, err = b.send.Send(ctx, chat, "I don't know you yet. Send /start to register.")
		return err
	}
	if err != nil {
		return err
	}
	text := fmt.Sprintf("*%s %s* %s",
		format.MarkdownV2Text(p.FirstName), format.MarkdownV2Text(p.LastName), format.MarkdownV2Text(p.Gender))
	_, err = b.send.Send(ctx, chat, text, tele.ModeMarkdownV2)
	return err
}

// OnGroup stays in the chat for as long as events keep coming: it logs
// messages and edits, answers /button@bot with a button and grants the
// wish of whoever clicks it.
func (b *Bot) OnGroup(ctx context.Context, chat *tele.Chat, env *session.Envelope) error {
	logger.Info(ctx, component, "group.enter", slog.String("payload", chat.Title))
	for {
		if err := b.groupEvent(ctx, chat, env); err != nil {
			return err
		}
		if _, err := session.NextEvent(ctx, env); err != nil {
			return err
		}
		if classify.LeftChat(env.Update) {
			logger.Info(ctx, component, "group.left", slog.String("payload", chat.Title))
			return nil
		}
	}
}

func (b *Bot) groupEvent(ctx context.Context, chat *tele.Chat, env *session.Envelope) error {
	author := ""
	if env.Message != nil {
		author = format.DisplayName(env.Message.Sender)
	}
	switch env.Kind {
	case classify.KindNewMessage:
		logger.Info(ctx, component, "group.message",
			slog.String("username", author),
			slog.String("payload", logger.SanitizeLimit(env.Text(), 256)),
		)
		if strings.TrimSpace(env.Text()) == "/button@"+b.username {
			_, err := b.send.Send(ctx, chat, "You summoned me!", keyboard.Row(keyboard.Button(wish, wish)))
			return err
		}
	case classify.KindEditedMessage:
		logger.Info(ctx, component, "group.edit",
			slog.String("username", author),
			slog.String("payload", logger.SanitizeLimit(env.Text(), 256)),
		)
	case classify.KindCallbackQuery:
		logger.Info(ctx, component, "group.click",
			slog.String("username", format.DisplayName(env.Sender())),
			slog.String("cb_data", env.CallbackData),
			slog.String("payload", logger.SanitizeLimit(env.Text(), 256)),
		)
		return session.ReplyCallback(ctx, env, "Wish granted !", false, "")
	}
	return nil
}
