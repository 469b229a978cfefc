package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})
	return slog.New(h), func() string {
		if err := aw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, output := newTestHandler(t, formatKV)
	ctx := WithMeta(context.Background(), Meta{UpdateID: 42, ChatID: 7, UserID: 9})

	LogEvent(ctx, log.With("component", "dispatch"), slog.LevelInfo, "command.done",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(output(), " ")
	want := []string{"ts=", "level=INFO", "component=dispatch", "event=command.done", "status=ok", "rid=16.7.9", "update_id=42", "user_id=9", "chat_id=7"}
	if len(tokens) < len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, output := newTestHandler(t, formatJSON)
	ctx := WithMeta(context.Background(), Meta{UpdateID: 11, ChatID: 22, UserID: 33})
	ctx = WithCommand(ctx, "warn", "Moderation")

	LogEvent(ctx, log.With("component", "moderation"), slog.LevelError, "warn.fail",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := output()
	ordered := []string{`{"ts":`, `"level":"ERROR"`, `"component":"moderation"`, `"event":"warn.fail"`, `"status":"fail"`, `"rid":"b.m.x"`, `"ts_unix_nano":`, `"command":"warn"`, `"category":"Moderation"`, `"err":"boom"`}
	pos := -1
	for _, part := range ordered {
		idx := strings.Index(line, part)
		if idx < 0 || idx < pos {
			t.Fatalf("%s missing or out of order in %s", part, line)
		}
		pos = idx
	}
}

func TestExplicitAttrBeatsMeta(t *testing.T) {
	log, output := newTestHandler(t, formatKV)
	ctx := WithMeta(context.Background(), Meta{UpdateID: 1, ChatID: 2, UserID: 3})

	LogEvent(ctx, log, slog.LevelInfo, "xp.transfer", slog.Int64("user_id", 99))

	line := output()
	if !strings.Contains(line, "user_id=99") || strings.Contains(line, "user_id=3") {
		t.Fatalf("line = %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("missing default component: %s", line)
	}
}

func TestDurationAttrsGetUnit(t *testing.T) {
	log, output := newTestHandler(t, formatKV)

	LogEvent(context.Background(), log, slog.LevelInfo, "send.fail",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("wait", 2*time.Second),
		slog.Duration("backoff_ms", 10*time.Millisecond),
	)

	line := output()
	for _, want := range []string{"duration_ms=2", "wait_ms=2000", "backoff_ms=10"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestUnknownEnumerationsDropped(t *testing.T) {
	log, output := newTestHandler(t, formatKV)

	LogEvent(context.Background(), log, slog.LevelInfo, "captcha.fail",
		slog.String("outcome", "exploded"),
		slog.String("cache", "hit"),
	)

	line := output()
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome kept: %s", line)
	}
	if !strings.Contains(line, "cache=hit") {
		t.Fatalf("known cache value dropped: %s", line)
	}
}

func TestMetaRID(t *testing.T) {
	if got := (Meta{}).RID(); got != "" {
		t.Fatalf("empty meta rid = %q", got)
	}
	if got := (Meta{UpdateID: 36, ChatID: -100, UserID: 35}).RID(); got != "10.-2s.z" {
		t.Fatalf("rid = %q", got)
	}
	ctx := WithHandler(context.Background(), "message")
	ctx = WithCommand(ctx, "ping", "General")
	m := MetaFrom(ctx)
	if m.Handler != "message" || m.Command != "ping" || m.Category != "General" {
		t.Fatalf("meta = %+v", m)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(2, 5)
	allowed := 0
	for range 50 {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("allowed = %d, want 20", allowed)
	}

	s.Set(0, 0)
	for range 3 {
		if !s.Allow() {
			t.Fatal("disabled sampler must allow everything")
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50":  {1, 50},
		" 3/4 ": {3, 4},
		"10":    {1, 10},
		"0":     {0, 0},
		"x/2":   {0, 0},
		"":      {0, 0},
	}
	for spec, want := range cases {
		num, den := parseRatioSpec(spec)
		if num != want[0] || den != want[1] {
			t.Errorf("parseRatioSpec(%q) = %d/%d, want %d/%d", spec, num, den, want[0], want[1])
		}
	}
}

func TestAsyncWriterFlushWritesQueuedLines(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 16)
	for range 100 {
		if err := aw.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := strings.Count(buf.String(), "line\n"); got != 100 {
		t.Fatalf("lines = %d", got)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\td\x7f", 10); got != "abc\td" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeLimit("привет мир", 6); got != "привет" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
