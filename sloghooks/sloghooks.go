// Package sloghooks reports statesync events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/statesync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchFailedEvery uint64
	SelfHealEvery    uint64
	// Optional key redactor. Query keys can carry usernames; defaults to a
	// SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchFailedCtr atomic.Uint64
	selfHealCtr    atomic.Uint64
}

var _ statesync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchFailed(key string, attempt int, err error) {
	if h.l == nil || !sample(h.opts.FetchFailedEvery, &h.fetchFailedCtr) {
		return
	}
	h.l.Warn("statesync.fetch_failed",
		"key", h.redact(key),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) RetryScheduled(key string, attempt int, delay time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("statesync.retry_scheduled",
		"key", h.redact(key),
		"attempt", attempt,
		"delay", delay)
}

func (h *Hooks) StaleResultDropped(key string, issued, applied uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("statesync.stale_result_dropped",
		"key", h.redact(key),
		"issued", issued,
		"applied", applied)
}

func (h *Hooks) Invalidated(prefix string, matched, refetched int) {
	if h.l == nil {
		return
	}
	h.l.Debug("statesync.invalidated",
		"prefix", h.redact(prefix),
		"matched", matched,
		"refetched", refetched)
}

func (h *Hooks) EntryCollected(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("statesync.entry_collected", "key", h.redact(key))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("statesync.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) PersistRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("statesync.persist_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("statesync.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}
