package statesync

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/unkn0wn-root/statesync/codec"
)

// FetchFunc loads the current server value of a query.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Query describes one logical query.
type Query[V any] struct {
	Key   Key
	Fetch FetchFunc[V]

	// Codec enables persistence of successful results when the client has a
	// Provider. nil => memory only.
	Codec codec.Codec[V]

	// StaleTime makes a successful result stale once it is older than this.
	// 0 => results only go stale through Invalidate.
	StaleTime time.Duration
}

func (q Query[V]) validate() error {
	if err := q.Key.Validate(); err != nil {
		return err
	}
	if q.Fetch == nil {
		return ErrNilFetch
	}
	return nil
}

func (q Query[V]) fetchAny() func(context.Context) (any, error) {
	f := q.Fetch
	return func(ctx context.Context) (any, error) {
		return f(ctx)
	}
}

func (q Query[V]) encodeAny() func(any) ([]byte, error) {
	if q.Codec == nil {
		return nil
	}
	cd := q.Codec
	return func(v any) ([]byte, error) {
		return cd.Encode(v.(V))
	}
}

// expired reports whether a result from updatedAt is past StaleTime.
func (q Query[V]) expired(updatedAt, now time.Time) bool {
	return q.StaleTime > 0 && now.Sub(updatedAt) >= q.StaleTime
}

// State is a typed view of a Query Entry.
type State[V any] struct {
	Key          Key
	Value        V // last successful result; kept when a later fetch fails
	HasValue     bool
	Status       Status
	Err          error // set while Status == StatusError
	UpdatedAt    time.Time
	FailureCount int  // failed attempts since the last success
	Fetching     bool // at least one fetch in flight
	Stale        bool
}

// IsLoading reports a first load: fetching with nothing to show yet.
func (s State[V]) IsLoading() bool { return s.Status == StatusLoading && !s.HasValue }

// IsRefetching reports a fetch running behind an existing value.
func (s State[V]) IsRefetching() bool { return s.Fetching && s.HasValue }

func stateOf[V any](k Key, sn snapshot) State[V] {
	st := State[V]{
		Key:          k,
		HasValue:     sn.hasValue,
		Status:       sn.status,
		Err:          sn.err,
		UpdatedAt:    sn.updatedAt,
		FailureCount: sn.failures,
		Fetching:     sn.fetching,
		Stale:        sn.stale,
	}
	if sn.hasValue {
		st.Value, _ = sn.value.(V)
	}
	return st
}

// Subscription delivers state changes of one query to one consumer.
type Subscription[V any] struct {
	c  *Client
	e  *entry
	id uint64

	mu     sync.Mutex
	ch     chan State[V]
	last   State[V]
	closed bool
}

var _ observer = (*Subscription[struct{}])(nil)

// deliver replaces any undelivered state with sn. Never blocks.
func (s *Subscription[V]) deliver(sn snapshot) {
	st := stateOf[V](s.e.key, sn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = st
	select {
	case <-s.ch:
	default:
	}
	s.ch <- st
}

func (s *Subscription[V]) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Key returns the subscribed key.
func (s *Subscription[V]) Key() Key { return s.e.key }

// State returns the latest state.
func (s *Subscription[V]) State() State[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Updates returns a channel holding at most the newest undelivered state.
// Intermediate states may be skipped; the last one never is. The channel is
// closed by Close or when the client closes.
func (s *Subscription[V]) Updates() <-chan State[V] { return s.ch }

// Refetch starts a new fetch and waits until it settles or ctx ends.
func (s *Subscription[V]) Refetch(ctx context.Context) error {
	c := s.c
	c.mu.Lock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if c.closed || closed {
		c.mu.Unlock()
		return ErrClosed
	}
	call := c.startFetchLocked(s.e)
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops delivery. When the last subscriber of an entry leaves, its GC
// countdown starts. Idempotent.
func (s *Subscription[V]) Close() {
	c := s.c
	c.mu.Lock()
	if _, ok := s.e.subs[s.id]; ok {
		delete(s.e.subs, s.id)
		if len(s.e.subs) == 0 {
			s.e.idleSince = c.now()
		}
	}
	c.mu.Unlock()
	s.shut()
}

type hydrated struct {
	value     any
	updatedAt time.Time
	ok        bool
}

// hydrate reads a persisted result for q when no entry exists yet. IO runs
// without the client lock.
func hydrate[V any](ctx context.Context, c *Client, q Query[V]) hydrated {
	if c.persist == nil || q.Codec == nil {
		return hydrated{}
	}
	c.mu.Lock()
	_, exists := c.entries[q.Key.String()]
	c.mu.Unlock()
	if exists {
		return hydrated{}
	}

	r, ok := c.persist.load(ctx, q.Key)
	if !ok {
		return hydrated{}
	}
	v, err := q.Codec.Decode(r.Payload)
	if err != nil {
		c.persist.discard(ctx, q.Key, "value_decode")
		return hydrated{}
	}
	return hydrated{value: v, updatedAt: r.UpdatedAt, ok: true}
}

// seedLocked applies a hydrated value to a freshly created entry. The value
// starts stale so the initial fetch still runs.
func (h hydrated) seedLocked(e *entry) {
	if !h.ok {
		return
	}
	e.value = h.value
	e.hasValue = true
	e.status = StatusSuccess
	e.updatedAt = h.updatedAt
	e.stale = true
}

// Subscribe registers interest in q.Key and returns immediately with the
// cached state. A fetch starts when the entry is new, or when no fetch is in
// flight and the entry is stale, idle, or older than q.StaleTime.
//
// The latest Subscribe or FetchQuery for a key defines the fetch function
// used by later refetches.
func Subscribe[V any](ctx context.Context, c *Client, q Query[V]) (*Subscription[V], error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := hydrate(ctx, c, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e, created, err := c.entryLocked(q.Key, reflect.TypeFor[V]())
	if err != nil {
		return nil, err
	}
	e.fetch = q.fetchAny()
	e.encode = q.encodeAny()
	if created {
		h.seedLocked(e)
	}

	c.nextSub++
	s := &Subscription[V]{c: c, e: e, id: c.nextSub, ch: make(chan State[V], 1)}
	e.subs[s.id] = s

	needsFetch := created || (e.inflight == 0 &&
		(e.stale || e.status == StatusIdle || (e.hasValue && q.expired(e.updatedAt, c.now()))))
	if needsFetch {
		c.startFetchLocked(e) // delivers the loading state to s
	} else {
		s.deliver(e.snapshot())
	}
	return s, nil
}

// FetchQuery returns the cached value of q when it is successful and fresh,
// otherwise fetches it. Concurrent callers for one key share a single fetch.
func FetchQuery[V any](ctx context.Context, c *Client, q Query[V]) (V, error) {
	var zero V
	if err := q.validate(); err != nil {
		return zero, err
	}
	h := hydrate(ctx, c, q)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	e, created, err := c.entryLocked(q.Key, reflect.TypeFor[V]())
	if err != nil {
		c.mu.Unlock()
		return zero, err
	}
	e.fetch = q.fetchAny()
	e.encode = q.encodeAny()
	if created {
		h.seedLocked(e)
	}
	if e.status == StatusSuccess && !e.stale && !q.expired(e.updatedAt, c.now()) {
		v, _ := e.value.(V)
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ch := c.sf.DoChan(e.hash, func() (any, error) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		call := c.startFetchLocked(e)
		c.mu.Unlock()
		<-call.done
		return call.val, call.err
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// GetQueryData returns the cached value for k, if any.
func GetQueryData[V any](c *Client, k Key) (V, bool) {
	var zero V
	if k.Validate() != nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k.String()]
	if !ok || !e.hasValue {
		return zero, false
	}
	v, ok := e.value.(V)
	return v, ok
}

// SetQueryData writes v as the successful result of k and notifies
// subscribers. The value is not persisted.
func SetQueryData[V any](c *Client, k Key, v V) error {
	if err := k.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	e, _, err := c.entryLocked(k, reflect.TypeFor[V]())
	if err != nil {
		return err
	}
	e.value = v
	e.hasValue = true
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	e.failures = 0
	e.stale = false
	c.notifyLocked(e)
	return nil
}
