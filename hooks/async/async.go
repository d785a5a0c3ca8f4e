// Package asynchook moves statesync hook calls off the caller's goroutine.
// Some hooks run while the client holds its lock; wrap any sink that does IO.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FetchFailedEvery: 10, // sample logs: ~every 10th failure
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	client, _ := statesync.New(statesync.Options{
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/statesync"
)

// Hooks forwards events to inner through a bounded queue. Events are dropped
// when the queue is full.
type Hooks struct {
	inner   statesync.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ statesync.Hooks = (*Hooks)(nil)

func New(inner statesync.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchFailed(k string, n int, err error) { h.try(func() { h.inner.FetchFailed(k, n, err) }) }
func (h *Hooks) RetryScheduled(k string, n int, d time.Duration) {
	h.try(func() { h.inner.RetryScheduled(k, n, d) })
}
func (h *Hooks) StaleResultDropped(k string, issued, applied uint64) {
	h.try(func() { h.inner.StaleResultDropped(k, issued, applied) })
}
func (h *Hooks) Invalidated(p string, matched, refetched int) {
	h.try(func() { h.inner.Invalidated(p, matched, refetched) })
}
func (h *Hooks) EntryCollected(k string)          { h.try(func() { h.inner.EntryCollected(k) }) }
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) PersistRejected(k string)         { h.try(func() { h.inner.PersistRejected(k) }) }
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
