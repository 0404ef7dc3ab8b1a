package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/chatloop/core/session"
	"github.com/m3rciful/chatloop/core/telegram/classify"

	tele "gopkg.in/telebot.v4"
)

type recordingSink struct {
	mu   sync.Mutex
	keys []int64
	ids  []int
	envs []*session.Envelope
}

func (s *recordingSink) Deliver(key int64, env *session.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.ids = append(s.ids, env.Update.ID)
	s.envs = append(s.envs, env)
}

func msgUpdate(id int, chatID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{ID: id, Text: text, Chat: &tele.Chat{ID: chatID, Type: tele.ChatGroup}}}
}

func TestIngestDropsStaleAndDuplicateIDs(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	ids := []int{3, 3, 1, 4, 2, 7, 7, 5, 8}
	var accepted []int
	for _, id := range ids {
		if d.Ingest(msgUpdate(id, 10, "x")) {
			accepted = append(accepted, id)
		}
	}

	want := []int{3, 4, 7, 8}
	if len(sink.ids) != len(want) {
		t.Fatalf("delivered %v, want %v", sink.ids, want)
	}
	for i := range want {
		if sink.ids[i] != want[i] || accepted[i] != want[i] {
			t.Fatalf("delivered %v accepted %v, want %v", sink.ids, accepted, want)
		}
	}
	st := d.Stats()
	if st.Accepted != 4 || st.Dropped != 5 || st.LastSeen != 8 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestIngestClassifiesAndResolvesKey(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	chat := &tele.Chat{ID: -100, Type: tele.ChatChannel}
	d.Ingest(tele.Update{ID: 1, ChannelPost: &tele.Message{ID: 1, Chat: chat, Sticker: &tele.Sticker{}}})
	d.Ingest(tele.Update{ID: 2, Callback: &tele.Callback{ID: "q", Data: "yes", Message: &tele.Message{ID: 1, Chat: chat}}})
	d.Ingest(tele.Update{ID: 3, Poll: &tele.Poll{ID: "p"}})

	if sink.keys[0] != -100 || sink.keys[1] != -100 || sink.keys[2] != session.NoChat {
		t.Fatalf("keys = %v", sink.keys)
	}
	first := sink.envs[0]
	if first.Kind != classify.KindNewMessage || first.Category() != classify.CategoryStickerOrDice {
		t.Fatalf("channel post classified as %s/%s", first.Kind, first.Category())
	}
	second := sink.envs[1]
	if second.Kind != classify.KindCallbackQuery || second.CallbackData != "yes" {
		t.Fatalf("callback classified as %s data=%q", second.Kind, second.CallbackData)
	}
	if sink.envs[2].Kind != classify.KindOtherUpdate {
		t.Fatalf("poll classified as %s", sink.envs[2].Kind)
	}
}

func TestIngestFeedsRegistryEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	runner := session.NewRunner(ctx, groupEcho{out: got}, session.RunnerOptions{})
	reg := session.NewRegistry(runner)
	d := New(reg)

	d.Ingest(msgUpdate(1, 7, "A"))
	d.Ingest(msgUpdate(1, 7, "A-again"))
	d.Ingest(msgUpdate(2, 7, "B"))

	for _, want := range []string{"A", "B"} {
		select {
		case text := <-got:
			if text != want {
				t.Fatalf("got %q, want %q", text, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	runner.Wait()
	select {
	case extra := <-got:
		t.Fatalf("duplicate update reached the handler: %q", extra)
	default:
	}
}

type groupEcho struct {
	session.BaseHandler
	out chan<- string
}

func (g groupEcho) OnGroup(_ context.Context, _ *tele.Chat, env *session.Envelope) error {
	g.out <- env.Text()
	return nil
}
