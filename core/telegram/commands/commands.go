// Package commands keeps the bot command menu and parses command messages.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/m3rciful/chatloop/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command describes a bot command. Name has no leading slash.
type Command struct {
	Name        string
	Description string
	Hidden      bool
	Aliases     []string
}

var (
	// ErrInvalid rejects commands that Telegram would not accept.
	ErrInvalid = errors.New("commands: invalid command")
	// ErrDuplicate rejects a name or alias that is already taken.
	ErrDuplicate = errors.New("commands: duplicate command")
)

var nameRe = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Menu holds registered commands keyed by name and alias.
type Menu struct {
	mu      sync.RWMutex
	byName  map[string]Command
	aliases map[string]string
}

// NewMenu returns an empty menu.
func NewMenu() *Menu {
	return &Menu{
		byName:  make(map[string]Command),
		aliases: make(map[string]string),
	}
}

// Register adds cmd. A leading slash in the name or aliases is ignored.
func (m *Menu) Register(cmd Command) error {
	cmd.Name = normalize(cmd.Name)
	if !nameRe.MatchString(cmd.Name) || cmd.Description == "" {
		logger.Warn(context.Background(), logger.CompTG, "register.command.skip",
			slog.String("name", cmd.Name),
			slog.String("cause", "invalid"),
		)
		return fmt.Errorf("%w: %q", ErrInvalid, cmd.Name)
	}
	aliases := make([]string, 0, len(cmd.Aliases))
	for _, a := range cmd.Aliases {
		if a = normalize(a); a != "" && a != cmd.Name {
			aliases = append(aliases, a)
		}
	}
	cmd.Aliases = aliases

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range append([]string{cmd.Name}, aliases...) {
		if m.taken(n) {
			logger.Warn(context.Background(), logger.CompTG, "register.command.duplicate",
				slog.String("name", n),
			)
			return fmt.Errorf("%w: %q", ErrDuplicate, n)
		}
	}
	m.byName[cmd.Name] = cmd
	for _, a := range aliases {
		m.aliases[a] = cmd.Name
	}
	return nil
}

func (m *Menu) taken(name string) bool {
	if _, ok := m.byName[name]; ok {
		return true
	}
	_, ok := m.aliases[name]
	return ok
}

// Lookup resolves a name or alias to its command.
func (m *Menu) Lookup(name string) (Command, bool) {
	name = normalize(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if canonical, ok := m.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := m.byName[name]
	return cmd, ok
}

// List returns commands sorted by name, skipping hidden ones when visibleOnly.
func (m *Menu) List(visibleOnly bool) []tele.Command {
	m.mu.RLock()
	list := make([]tele.Command, 0, len(m.byName))
	for name, cmd := range m.byName {
		if visibleOnly && cmd.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Match parses text and resolves the command it names.
func (m *Menu) Match(text, botUsername string) (Command, string, bool) {
	name, args, ok := Parse(text, botUsername)
	if !ok {
		return Command{}, "", false
	}
	cmd, ok := m.Lookup(name)
	return cmd, args, ok
}

// Publisher is the part of *tele.Bot that sets the command menu.
type Publisher interface {
	SetCommands(opts ...interface{}) error
}

// Publish sends the visible commands to Telegram.
func (m *Menu) Publish(ctx context.Context, api Publisher) error {
	list := m.List(true)
	if err := api.SetCommands(list); err != nil {
		logger.Error(ctx, logger.CompTG, "register.commands.set",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("commands: set commands: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(list)),
	)
	return nil
}

// Parse splits "/name@bot args" into name and args. A command addressed to
// another bot is not a match. botUsername may carry a leading "@".
func Parse(text, botUsername string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, args = head[:i], head[i:]
	}
	head, target, addressed := strings.Cut(head, "@")
	if addressed && !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
		return "", "", false
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(args), true
}

// Is reports whether text is exactly the command name, optionally with a
// mention of the bot.
func Is(text, name, botUsername string) bool {
	got, args, ok := Parse(strings.TrimSpace(text), botUsername)
	return ok && args == "" && got == normalize(name)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
