package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, 1024, 16)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   w,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(handler), func() string {
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(output(), " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "chat_id=9", "user_id=7"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%v)", len(tokens), tokens)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, output := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	LogEvent(ctx, log.With("component", "session"), slog.LevelError, "turn.done",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := output()
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"session"`, `"event":"turn.done"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := BuildRID(123, -456, 789)

	log, output := newTestLogger(t, formatKV)
	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test")
	line := output()
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}

	log, output = newTestLogger(t, formatJSON)
	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test")
	line = output()
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) || !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected compact and full rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID("36:-36:0"); got != "10.-10.0" {
		t.Fatalf("CompactRID = %q", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("CompactRID changed a foreign value: %q", got)
	}
}

func TestTurnAndHandlerFromContext(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithHandler(WithTurn(context.Background(), "turn-1"), "private")
	LogEvent(ctx, log, slog.LevelInfo, "turn.start", slog.Duration("duration", 1500*time.Microsecond))

	line := output()
	for _, want := range []string{"turn=turn-1", "handler=private", "duration_ms=2", "component=app"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
	if strings.Index(line, "turn=") > strings.Index(line, "handler=") {
		t.Fatalf("turn must precede handler: %s", line)
	}
}

func TestOutcomeEnumeration(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	LogEvent(context.Background(), log, slog.LevelInfo, "a", slog.String("outcome", "Aborted"))
	LogEvent(context.Background(), log, slog.LevelInfo, "b", slog.String("outcome", "bogus"))

	lines := strings.Split(output(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "outcome=aborted") {
		t.Fatalf("known outcome not normalized: %s", lines[0])
	}
	if strings.Contains(lines[1], "outcome=") {
		t.Fatalf("unknown outcome kept: %s", lines[1])
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\td", 10); got != "abc\td" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("привет", 3); got != "при" {
		t.Fatalf("SanitizeLimit runes = %q", got)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(2, 5)
	var allowed int
	for i := 0; i < 20; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 8 {
		t.Fatalf("allowed %d of 20, want 8", allowed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
	if num, den := parseRatioSpec("10"); num != 1 || den != 10 {
		t.Fatalf("parseRatioSpec(10) = %d/%d", num, den)
	}
	if num, den := parseRatioSpec("3/x"); num != 0 || den != 0 {
		t.Fatalf("parseRatioSpec(3/x) = %d/%d", num, den)
	}
}

func TestLineWriterRejectsAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, 64, 4)
	if err := w.Write([]byte("one\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if buf.String() != "one\n" {
		t.Fatalf("buffer = %q", buf.String())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write([]byte("two\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if w.Dropped() != 1 {
		t.Fatalf("dropped = %d", w.Dropped())
	}
}

func TestHelpersAreNoopsWithoutInit(t *testing.T) {
	if L != nil {
		t.Skip("global logger initialised by another test")
	}
	Info(context.Background(), CompSession, "noop", slog.String("status", "ok"))
	if ShouldSampleDebug() {
		t.Fatal("debug sampling must be off without a logger")
	}
}
