package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/chatloop/core/config"
	"github.com/m3rciful/chatloop/core/session"
	"github.com/m3rciful/chatloop/core/telegram/classify"
	"github.com/m3rciful/chatloop/core/telegram/source"

	tele "gopkg.in/telebot.v4"
)

type scriptedPoller struct {
	updates []tele.Update
	emitted chan struct{}
}

func (p *scriptedPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for _, upd := range p.updates {
		dest <- upd
	}
	close(p.emitted)
	<-stop
}

// waitingHandler collects the texts of one group conversation: the first
// message starts the turn, later ones are read with NextEvent.
type waitingHandler struct {
	session.BaseHandler
	want int

	mu    sync.Mutex
	texts []string
	done  chan struct{}
}

func (h *waitingHandler) OnGroup(ctx context.Context, _ *tele.Chat, env *session.Envelope) error {
	h.record(env.Text())
	for {
		kind, err := session.NextEvent(ctx, env)
		if err != nil {
			return err
		}
		if kind == classify.KindNewMessage {
			h.record(env.Text())
		}
	}
}

func (h *waitingHandler) record(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
	if len(h.texts) == h.want {
		close(h.done)
	}
}

func TestRunTelegramDeliversAndShutsDown(t *testing.T) {
	group := &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}
	msg := func(id int, text string) tele.Update {
		return tele.Update{ID: id, Message: &tele.Message{ID: id, Chat: group, Text: text, Sender: &tele.User{ID: 7}}}
	}
	poller := &scriptedPoller{
		updates: []tele.Update{msg(1, "a"), msg(2, "b"), msg(2, "b"), msg(3, "c")},
		emitted: make(chan struct{}),
	}
	h := &waitingHandler{want: 3, done: make(chan struct{})}

	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "123:test"
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll

	var (
		results []session.TurnResult
		resMu   sync.Mutex
		started Runtime
		stopped bool
	)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- RunTelegram(ctx, RunOptions{
			Config:                cfg,
			Poller:                poller,
			Offline:               true,
			DisableWebhookCleanup: true,
			NewHandler: func(rt Runtime) (session.Handler, error) {
				if rt.Messenger == nil || rt.Bot == nil {
					return nil, errors.New("incomplete runtime")
				}
				return h, nil
			},
			Observer: func(res session.TurnResult) {
				resMu.Lock()
				results = append(results, res)
				resMu.Unlock()
			},
			OnStart: func(_ context.Context, rt Runtime) error {
				started = rt
				return nil
			},
			OnStop: func(context.Context, Runtime) error {
				stopped = true
				return nil
			},
		})
	}()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not receive all messages")
	}
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("RunTelegram: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunTelegram did not stop")
	}

	if got := h.texts; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("texts = %v", got)
	}
	if !stopped || started.Dispatcher == nil {
		t.Fatal("lifecycle hooks not called")
	}
	if s := started.Dispatcher.Stats(); s.Accepted != 3 || s.Dropped != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if len(results) != 1 || results[0].Outcome != session.OutcomeCancelled {
		t.Fatalf("results = %+v", results)
	}
}

// quittingPoller delivers its updates and returns without being stopped.
type quittingPoller struct {
	updates []tele.Update
}

func (p quittingPoller) Poll(_ *tele.Bot, dest chan tele.Update, _ chan struct{}) {
	for _, upd := range p.updates {
		dest <- upd
	}
}

func TestRunTelegramFailsWhenSourceStops(t *testing.T) {
	group := &tele.Chat{ID: -7, Type: tele.ChatGroup}
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "123:test"

	h := &waitingHandler{want: 1, done: make(chan struct{})}
	var (
		mu      sync.Mutex
		results []session.TurnResult
	)
	errc := make(chan error, 1)
	go func() {
		errc <- RunTelegram(context.Background(), RunOptions{
			Config: cfg,
			Poller: quittingPoller{updates: []tele.Update{
				{ID: 1, Message: &tele.Message{ID: 1, Chat: group, Text: "only"}},
			}},
			Offline:               true,
			DisableWebhookCleanup: true,
			NewHandler:            func(Runtime) (session.Handler, error) { return h, nil },
			Observer: func(res session.TurnResult) {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			},
		})
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, source.ErrPollerStopped) {
			t.Fatalf("RunTelegram error = %v, want ErrPollerStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunTelegram kept running after the source stopped")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0].Outcome != session.OutcomeCancelled {
		t.Fatalf("suspended turn not released: %+v", results)
	}
}

func TestRunTelegramValidatesOptions(t *testing.T) {
	if err := RunTelegram(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected error without config")
	}
	if err := RunTelegram(context.Background(), RunOptions{Config: &coreconfig.Config{}}); err == nil {
		t.Fatal("expected error without handler factory")
	}
}

func TestSenderOptions(t *testing.T) {
	opts := SenderOptions(coreconfig.SenderConfig{QueueSize: 8, Workers: 2, MaxRetries: 1, RetryBackoffMS: 250})
	if opts.QueueSize != 8 || opts.Workers != 2 || opts.MaxRetries != 1 || opts.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("opts = %+v", opts)
	}
}
