package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	}), aw
}

func closeWriter(t *testing.T, aw *asyncWriter) {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(handler).With("component", "service.conversation")
	LogEvent(ctx, log, slog.LevelInfo, "workflow.committed",
		slog.String("status", "OK"),
		slog.String("workflow", "add_movie"),
	)
	closeWriter(t, aw)

	tokens := strings.Split(strings.TrimSpace(buf.String()), " ")
	expected := []string{"ts=", "level=INFO", "component=service.conversation", "event=workflow.committed", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "workflow=add_movie"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), buf.String())
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	rawRID := BuildRID(12, 34, 56)
	ctx := WithRID(Background(), rawRID)

	log := slog.New(handler).With("component", "service.registry")
	LogEvent(ctx, log, slog.LevelError, "store.save",
		slog.String("status", "fail"),
		slog.String("err", "disk full"),
		slog.Duration("duration", 1500*time.Microsecond),
	)
	closeWriter(t, aw)

	line := strings.TrimSpace(buf.String())
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.registry"`, `"event":"store.save"`, `"status":"fail"`, `"rid":"` + CompactRID(rawRID) + `"`, `"rid_full":"12:34:56"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
	if !strings.Contains(line, `"duration_ms":2`) {
		t.Fatalf("expected rounded duration_ms, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
	}
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	LogEvent(Background(), slog.New(handler), slog.LevelInfo, "handler.handled",
		slog.String("outcome", "weird"),
		slog.String("payload", "two words"),
	)
	closeWriter(t, aw)

	line := buf.String()
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
	if !strings.Contains(line, `payload="two words"`) {
		t.Fatalf("expected quoted payload: %s", line)
	}
	if !strings.Contains(line, "component=app") {
		t.Fatalf("expected default component: %s", line)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allow #%d = %v, want %v", i, got[i], want[i])
		}
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestCompactRIDKeepsForeignShapes(t *testing.T) {
	if got := CompactRID("abc"); got != "abc" {
		t.Fatalf("got %s", got)
	}
	if got := CompactRID("35:0:36"); got != "z.0.10" {
		t.Fatalf("got %s", got)
	}
}
