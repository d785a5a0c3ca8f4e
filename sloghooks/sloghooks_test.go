package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRedactsKeysByDefault(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{})

	h.FetchFailed(`["userProfile","ada"]`, 1, errors.New("refused"))
	out := buf.String()
	if strings.Contains(out, "ada") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "statesync.fetch_failed") || !strings.Contains(out, "err=refused") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCustomRedactAndSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{
		SelfHealEvery: 3,
		Redact:        func(k string) string { return "K" },
	})
	for i := 0; i < 6; i++ {
		h.SelfHeal("query:ns:abc", "gen_mismatch")
	}
	if n := strings.Count(buf.String(), "statesync.self_heal"); n != 2 {
		t.Fatalf("logged %d self-heals; want 2", n)
	}
	if !strings.Contains(buf.String(), "key=K") {
		t.Fatalf("custom redactor unused: %s", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.FetchFailed("k", 1, errors.New("x"))
	h.RetryScheduled("k", 1, 0)
	h.StaleResultDropped("k", 1, 2)
	h.Invalidated("k", 1, 1)
	h.EntryCollected("k")
	h.SelfHeal("k", "corrupt")
	h.PersistRejected("k")
	h.GenBumpError("k", errors.New("x"))
}
