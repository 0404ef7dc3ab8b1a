package session

import (
	"context"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type funcHandler struct {
	BaseHandler
	private func(ctx context.Context, chat *tele.Chat, user *tele.User, env *Envelope) error
	group   func(ctx context.Context, chat *tele.Chat, env *Envelope) error
	other   func(ctx context.Context, env *Envelope) error
}

func (h funcHandler) OnPrivate(ctx context.Context, chat *tele.Chat, user *tele.User, env *Envelope) error {
	if h.private == nil {
		return nil
	}
	return h.private(ctx, chat, user, env)
}

func (h funcHandler) OnGroup(ctx context.Context, chat *tele.Chat, env *Envelope) error {
	if h.group == nil {
		return nil
	}
	return h.group(ctx, chat, env)
}

func (h funcHandler) OnOther(ctx context.Context, env *Envelope) error {
	if h.other == nil {
		return nil
	}
	return h.other(ctx, env)
}

type recordingAnswerer struct {
	mu      sync.Mutex
	answers []string
}

func (a *recordingAnswerer) AnswerCallback(_ context.Context, cb *tele.Callback, resp *tele.CallbackResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	text := ""
	if resp != nil {
		text = resp.Text
	}
	a.answers = append(a.answers, cb.ID+":"+text)
}

func (a *recordingAnswerer) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.answers...)
}

// harness wires a runner and registry with a buffered turn result channel.
type harness struct {
	reg     *Registry
	runner  *Runner
	answers *recordingAnswerer
	results chan TurnResult
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, h Handler) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hs := &harness{
		answers: &recordingAnswerer{},
		results: make(chan TurnResult, 1024),
		cancel:  cancel,
	}
	hs.runner = NewRunner(ctx, h, RunnerOptions{
		Answerer: hs.answers,
		Observer: func(res TurnResult) { hs.results <- res },
	})
	hs.reg = NewRegistry(hs.runner)
	t.Cleanup(func() {
		cancel()
		hs.runner.Wait()
	})
	return hs
}

func (hs *harness) deliver(upd tele.Update) {
	env := NewEnvelope(upd)
	hs.reg.Deliver(env.Key, env)
}

func (hs *harness) nextResult(t *testing.T) TurnResult {
	t.Helper()
	select {
	case res := <-hs.results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turn result")
	}
	return TurnResult{}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

var (
	privateChat = &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	groupChat   = &tele.Chat{ID: 7, Type: tele.ChatGroup}
)

func textUpdate(id int, chat *tele.Chat, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			ID:     id,
			Chat:   chat,
			Sender: &tele.User{ID: 1001, FirstName: "Alice"},
			Text:   text,
		},
	}
}

func callbackUpdate(id int, msg *tele.Message, data string) tele.Update {
	return tele.Update{
		ID: id,
		Callback: &tele.Callback{
			ID:      "cb" + data,
			Sender:  &tele.User{ID: 1001},
			Message: msg,
			Data:    data,
		},
	}
}

func leftUpdate(id int, chat *tele.Chat) tele.Update {
	return tele.Update{
		ID: id,
		MyChatMember: &tele.ChatMemberUpdate{
			Chat:          chat,
			NewChatMember: &tele.ChatMember{Role: tele.Kicked},
		},
	}
}
