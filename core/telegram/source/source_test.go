package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/chatloop/core/config"

	tele "gopkg.in/telebot.v4"
)

// scriptedPoller emits its updates, then blocks until stopped.
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

type recordingSink struct {
	mu   sync.Mutex
	ids  []int
	seen int
}

func (s *recordingSink) Ingest(upd tele.Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.ID <= s.seen {
		return false
	}
	s.seen = upd.ID
	s.ids = append(s.ids, upd.ID)
	return true
}

func TestRunPumpsInOrderUntilCancelled(t *testing.T) {
	p := &scriptedPoller{
		updates: []tele.Update{{ID: 1}, {ID: 2}, {ID: 2}, {ID: 3}},
		emitted: make(chan struct{}),
	}
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- New(p, 1).Run(ctx, nil, sink) }()

	<-p.emitted
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if len(sink.ids) != 3 || sink.ids[0] != 1 || sink.ids[1] != 2 || sink.ids[2] != 3 {
		t.Fatalf("ingested %v", sink.ids)
	}
}

// quittingPoller emits its updates and returns without waiting for stop.
type quittingPoller struct {
	updates []tele.Update
}

func (p quittingPoller) Poll(_ *tele.Bot, dest chan tele.Update, _ chan struct{}) {
	for _, upd := range p.updates {
		dest <- upd
	}
}

func TestRunFailsWhenPollerQuitsEarly(t *testing.T) {
	sink := &recordingSink{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := New(quittingPoller{updates: []tele.Update{{ID: 1}, {ID: 2}}}, 4).Run(ctx, nil, sink)
	if !errors.Is(err, ErrPollerStopped) {
		t.Fatalf("Run error = %v, want ErrPollerStopped", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("Run returned only after the deadline: %v", ctx.Err())
	}
	if len(sink.ids) != 2 {
		t.Fatalf("buffered updates not drained: %v", sink.ids)
	}
}

func TestBuildPoller(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	cfg.Telegram.AllowedUpdates = []string{"message"}
	lp, ok := BuildPoller(OptionsFromConfig(cfg)).(*tele.LongPoller)
	if !ok || lp.Timeout != DefaultLongPollTimeout || len(lp.AllowedUpdates) != 1 {
		t.Fatalf("long poller = %+v", lp)
	}

	cfg.Telegram.RunMode = coreconfig.RunModeWebhook
	cfg.Webhook = coreconfig.WebhookConfig{URL: "https://bot.example/hook", Listen: "0.0.0.0", Port: 8443}
	wh, ok := BuildPoller(OptionsFromConfig(cfg)).(*tele.Webhook)
	if !ok || wh.Listen != "0.0.0.0:8443" || wh.Endpoint.PublicURL != "https://bot.example/hook" || !wh.IgnoreSetWebhook {
		t.Fatalf("webhook = %+v", wh)
	}
}

type fakeWebhookAPI struct {
	info    *tele.Webhook
	set     []*tele.Webhook
	removed []bool
}

func (f *fakeWebhookAPI) Webhook() (*tele.Webhook, error) { return f.info, nil }
func (f *fakeWebhookAPI) SetWebhook(w *tele.Webhook) error {
	f.set = append(f.set, w)
	return nil
}
func (f *fakeWebhookAPI) RemoveWebhook(drop ...bool) error {
	f.removed = append(f.removed, len(drop) > 0 && drop[0])
	return nil
}

func TestEnsureWebhookRegistersOnlyOnChange(t *testing.T) {
	hook := &tele.Webhook{Endpoint: &tele.WebhookEndpoint{PublicURL: "https://bot.example/hook"}}

	api := &fakeWebhookAPI{info: &tele.Webhook{
		Endpoint:      &tele.WebhookEndpoint{PublicURL: "https://old.example/hook"},
		ErrorMessage:  "Connection refused",
		ErrorUnixtime: 1700000000,
	}}
	status, err := EnsureWebhook(context.Background(), api, hook)
	if err != nil {
		t.Fatalf("EnsureWebhook: %v", err)
	}
	if !status.Registered || len(api.set) != 1 || status.LastError != "Connection refused" {
		t.Fatalf("status = %+v set = %d", status, len(api.set))
	}

	api = &fakeWebhookAPI{info: &tele.Webhook{Endpoint: &tele.WebhookEndpoint{PublicURL: "https://bot.example/hook"}}}
	status, err = EnsureWebhook(context.Background(), api, hook)
	if err != nil || status.Registered || len(api.set) != 0 {
		t.Fatalf("unchanged webhook re-registered: %+v, %v", status, err)
	}

	if _, err := EnsureWebhook(context.Background(), api, &tele.Webhook{}); err == nil {
		t.Fatal("expected error for webhook without url")
	}
}

func TestDeleteWebhook(t *testing.T) {
	api := &fakeWebhookAPI{}
	if err := DeleteWebhook(context.Background(), api, true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if len(api.removed) != 1 || !api.removed[0] {
		t.Fatalf("removed = %v", api.removed)
	}
}
