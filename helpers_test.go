package statesync

import (
	"context"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/statesync/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is safe for the concurrent saves made by fetch goroutines.
type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type hookCounts struct {
	failed   int
	retries  int
	dropped  int
	invals   []string
	selfHeal []string
	collect  []string
}

// recHooks records hook calls.
type recHooks struct {
	NopHooks
	mu sync.Mutex
	hookCounts
}

func (h *recHooks) FetchFailed(string, int, error) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *recHooks) RetryScheduled(string, int, time.Duration) {
	h.mu.Lock()
	h.retries++
	h.mu.Unlock()
}

func (h *recHooks) StaleResultDropped(string, uint64, uint64) {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

func (h *recHooks) Invalidated(prefix string, _, _ int) {
	h.mu.Lock()
	h.invals = append(h.invals, prefix)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.selfHeal = append(h.selfHeal, reason)
	h.mu.Unlock()
}

func (h *recHooks) EntryCollected(key string) {
	h.mu.Lock()
	h.collect = append(h.collect, key)
	h.mu.Unlock()
}

func (h *recHooks) snapshot() hookCounts {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hookCounts{
		failed:   h.failed,
		retries:  h.retries,
		dropped:  h.dropped,
		invals:   append([]string(nil), h.invals...),
		selfHeal: append([]string(nil), h.selfHeal...),
		collect:  append([]string(nil), h.collect...),
	}
}

func newTestClient(t *testing.T, optsOpt func(*Options)) *Client {
	t.Helper()
	opts := Options{Namespace: "test"}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// waitState reads updates until pred holds and returns that state.
func waitState[V any](t *testing.T, s *Subscription[V], pred func(State[V]) bool) State[V] {
	t.Helper()
	if st := s.State(); pred(st) {
		return st
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-s.Updates():
			if !ok {
				t.Fatalf("updates closed before condition held; last=%+v", s.State())
			}
			if pred(st) {
				return st
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state; last=%+v", s.State())
		}
	}
}

func settled[V any](st State[V]) bool {
	return !st.Fetching && (st.Status == StatusSuccess || st.Status == StatusError)
}

// gatedFetch returns a fetch whose n-th call (1-based) blocks until gates[n]
// is closed. Calls without a gate return immediately. started receives n.
type gatedFetch[V any] struct {
	mu      sync.Mutex
	calls   int
	gates   map[int]chan struct{}
	results func(n int) (V, error)
	started chan int
}

func newGatedFetch[V any](results func(n int) (V, error), gated ...int) *gatedFetch[V] {
	g := &gatedFetch[V]{
		gates:   make(map[int]chan struct{}),
		results: results,
		started: make(chan int, 16),
	}
	for _, n := range gated {
		g.gates[n] = make(chan struct{})
	}
	return g
}

func (g *gatedFetch[V]) fetch(ctx context.Context) (V, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	gate := g.gates[n]
	g.mu.Unlock()
	g.started <- n
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	return g.results(n)
}

func (g *gatedFetch[V]) release(n int) { close(g.gates[n]) }

func (g *gatedFetch[V]) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedFetch[V]) waitStarted(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-g.started:
			if got == n {
				return
			}
		case <-timeout:
			t.Fatalf("fetch %d never started", n)
		}
	}
}
