package statesync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Client owns the query entries of one process (or one user session).
// All entry state is guarded by mu; fetch functions run on their own
// goroutines outside the lock.
//
// Lock order: Client.mu, then Subscription.mu.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextSub uint64
	closed  bool

	log          Logger
	hooks        Hooks
	retry        RetryPolicy
	ordering     Ordering
	fetchTimeout time.Duration
	gcTime       time.Duration
	now          func() time.Time

	persist *persister
	sf      singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	fetchWg sync.WaitGroup

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	stats counters
}

type counters struct {
	fetches       atomic.Uint64
	failures      atomic.Uint64
	retries       atomic.Uint64
	invalidations atomic.Uint64
	staleDropped  atomic.Uint64
	collected     atomic.Uint64
}

// Stats is a point-in-time copy of the client's counters.
type Stats struct {
	Entries       int
	Fetches       uint64 // fetches started
	Failures      uint64 // failed attempts, retries included
	Retries       uint64
	Invalidations uint64
	StaleDropped  uint64
	Collected     uint64
}

// entry is the untyped Query Entry. Typed access goes through State[V].
type entry struct {
	key  Key
	hash string
	typ  reflect.Type

	value     any
	hasValue  bool
	status    Status
	err       error
	updatedAt time.Time
	failures  int
	stale     bool

	inflight   int
	issued     uint64 // seq of the last started fetch
	applied    uint64 // seq of the last applied completion
	invalidSeq uint64 // issued at the last Invalidate; older results stay stale

	fetch  func(context.Context) (any, error)
	encode func(any) ([]byte, error) // nil => not persisted

	subs      map[uint64]observer
	idleSince time.Time
	removed   bool
}

type observer interface {
	deliver(snapshot)
	shut()
}

type snapshot struct {
	value     any
	hasValue  bool
	status    Status
	err       error
	updatedAt time.Time
	failures  int
	stale     bool
	fetching  bool
}

func (e *entry) snapshot() snapshot {
	return snapshot{
		value:     e.value,
		hasValue:  e.hasValue,
		status:    e.status,
		err:       e.err,
		updatedAt: e.updatedAt,
		failures:  e.failures,
		stale:     e.stale,
		fetching:  e.inflight > 0,
	}
}

// fetchCall is the outcome of one started fetch. When a newer completion
// already won (LastIssued), val and err are replaced by what the entry holds.
type fetchCall struct {
	done    chan struct{}
	val     any
	err     error
	dropped bool
}

func newClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = NopLogger{}
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	if opts.Retry.Count < 0 {
		return nil, fmt.Errorf("statesync: negative retry count %d", opts.Retry.Count)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		entries:      make(map[string]*entry),
		log:          log,
		hooks:        hooks,
		retry:        opts.Retry,
		ordering:     opts.Ordering,
		fetchTimeout: opts.FetchTimeout,
		gcTime:       coalesce(opts.GCTime, defaultGCTime),
		now:          time.Now,
		persist:      opts.persister(log, hooks),
		baseCtx:      baseCtx,
		cancel:       cancel,
	}

	if c.gcTime >= 0 {
		c.ticker = time.NewTicker(coalesce(opts.CleanupInterval, defaultCleanupInterval))
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go func() {
			defer c.closeWg.Done()
			for {
				select {
				case <-c.ticker.C:
					c.sweep(c.now())
				case <-c.stopCh:
					return
				}
			}
		}()
	}
	return c, nil
}

// entryLocked returns the entry for k, creating it when missing.
// Caller holds c.mu.
func (c *Client) entryLocked(k Key, typ reflect.Type) (*entry, bool, error) {
	hash := k.String()
	if e, ok := c.entries[hash]; ok {
		if e.typ != typ {
			return nil, false, fmt.Errorf("%w: %s holds %v, not %v", ErrTypeMismatch, hash, e.typ, typ)
		}
		return e, false, nil
	}
	e := &entry{
		key:       append(Key(nil), k...),
		hash:      hash,
		typ:       typ,
		subs:      make(map[uint64]observer),
		idleSince: c.now(),
	}
	c.entries[hash] = e
	return e, true, nil
}

func (c *Client) notifyLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshot()
	for _, o := range e.subs {
		o.deliver(snap)
	}
}

// startFetchLocked issues a new fetch for e and moves it to loading.
// Caller holds c.mu and has checked c.closed.
func (c *Client) startFetchLocked(e *entry) *fetchCall {
	e.issued++
	e.inflight++
	e.status = StatusLoading
	call := &fetchCall{done: make(chan struct{})}
	c.stats.fetches.Add(1)
	c.fetchWg.Add(1)
	go c.runFetch(e, e.issued, e.fetch, e.encode, call)
	c.notifyLocked(e)
	return call
}

func (c *Client) runFetch(e *entry, seq uint64, fetch func(context.Context) (any, error), encode func(any) ([]byte, error), call *fetchCall) {
	defer c.fetchWg.Done()
	defer close(call.done)

	ctx := c.baseCtx
	pctx := context.WithoutCancel(ctx)

	// Generation observed before the request goes out: the result may only be
	// persisted if no invalidation happened in between.
	var observed uint64
	persist := c.persist != nil && encode != nil
	if persist {
		g, err := c.persist.observe(pctx, e.key)
		if err != nil {
			persist = false
		}
		observed = g
	}

	obs := func(attempt int, err error, retryIn time.Duration, willRetry bool) {
		c.stats.failures.Add(1)
		c.hooks.FetchFailed(e.hash, attempt, err)
		c.mu.Lock()
		e.failures++
		c.notifyLocked(e)
		c.mu.Unlock()
		if willRetry {
			c.stats.retries.Add(1)
			c.hooks.RetryScheduled(e.hash, attempt, retryIn)
			c.log.Debug("fetch failed; retrying", keyFields(e.key, "attempt", attempt, "in", retryIn, "err", err))
			return
		}
		c.log.Warn("fetch failed", keyFields(e.key, "attempt", attempt, "err", err))
	}
	v, err := withRetry(ctx, c.retry, obs, func(ctx context.Context) (any, error) {
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
			defer cancel()
		}
		return fetch(ctx)
	})
	call.val, call.err = v, err

	updatedAt, applied := c.complete(e, seq, call)
	if !applied || err != nil || !persist {
		return
	}
	payload, encErr := encode(v)
	if encErr != nil {
		c.log.Warn("persist encode failed", keyFields(e.key, "err", encErr))
		return
	}
	if perr := c.persist.save(pctx, e.key, payload, updatedAt, observed); perr != nil && !errors.Is(perr, errPersistClosed) {
		c.log.Warn("persist failed", keyFields(e.key, "err", perr))
	}
}

// complete applies the outcome held by call. It reports whether the outcome
// was applied to a live entry.
func (c *Client) complete(e *entry, seq uint64, call *fetchCall) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.inflight--
	if e.inflight == 0 && len(e.subs) == 0 {
		e.idleSince = c.now()
	}
	if c.ordering == LastIssued && seq < e.applied {
		c.stats.staleDropped.Add(1)
		c.hooks.StaleResultDropped(e.hash, seq, e.applied)
		c.log.Debug("stale result dropped", keyFields(e.key, "seq", seq, "applied", e.applied))
		call.dropped = true
		if e.err != nil {
			call.val, call.err = nil, e.err
		} else {
			call.val, call.err = e.value, nil
		}
		c.notifyLocked(e)
		return time.Time{}, false
	}
	e.applied = seq

	if call.err != nil {
		// keep the prior value; only status and error change
		e.status = StatusError
		e.err = call.err
	} else {
		e.value = call.val
		e.hasValue = true
		e.status = StatusSuccess
		e.err = nil
		e.updatedAt = c.now()
		e.failures = 0
		// a fetch issued before the last Invalidate cannot make the entry fresh
		e.stale = seq <= e.invalidSeq
	}
	c.notifyLocked(e)
	return e.updatedAt, !e.removed
}

// Invalidate marks every entry whose key starts with prefix as stale and
// starts one refetch for each of them that has a subscriber. Entries without
// subscribers are only marked stale.
//
// With persistence enabled the generation of prefix is bumped first, so
// results stored before this call are never hydrated again. Persistence
// failures are returned as *InvalidateError; the in-memory invalidation has
// happened regardless.
func (c *Client) Invalidate(ctx context.Context, prefix Key) (int, error) {
	if err := prefix.Validate(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	var bumpErr error
	if c.persist != nil {
		bumpErr = c.persist.bump(ctx, prefix)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	var matched []Key
	refetched := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.stale = true
		e.invalidSeq = e.issued
		matched = append(matched, e.key)
		if len(e.subs) > 0 && e.fetch != nil {
			c.startFetchLocked(e)
			refetched++
		} else {
			c.notifyLocked(e)
		}
	}
	c.mu.Unlock()

	c.stats.invalidations.Add(1)
	c.hooks.Invalidated(prefix.String(), len(matched), refetched)
	c.log.Debug("invalidated", keyFields(prefix, "matched", len(matched), "refetched", refetched))

	if c.persist == nil {
		return refetched, nil
	}
	delErr := c.persist.drop(ctx, matched)
	if bumpErr != nil || delErr != nil {
		return refetched, &InvalidateError{Key: prefix.String(), BumpErr: bumpErr, DelErr: delErr}
	}
	return refetched, nil
}

// RefetchQueries refetches every subscribed entry under prefix and waits for
// all of them to settle. It returns the first fetch error.
func (c *Client) RefetchQueries(ctx context.Context, prefix Key) error {
	if err := prefix.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var calls []*fetchCall
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) && len(e.subs) > 0 && e.fetch != nil {
			calls = append(calls, c.startFetchLocked(e))
		}
	}
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			select {
			case <-call.done:
				return call.err
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// RemoveQueries drops entries under prefix that have no subscribers and
// returns how many were removed. Fetches still in flight for them finish but
// are no longer persisted.
func (c *Client) RemoveQueries(prefix Key) int {
	if prefix.Validate() != nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for hash, e := range c.entries {
		if e.key.HasPrefix(prefix) && len(e.subs) == 0 {
			e.removed = true
			delete(c.entries, hash)
			n++
		}
	}
	return n
}

// Stats returns the client's counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Entries:       n,
		Fetches:       c.stats.fetches.Load(),
		Failures:      c.stats.failures.Load(),
		Retries:       c.stats.retries.Load(),
		Invalidations: c.stats.invalidations.Load(),
		StaleDropped:  c.stats.staleDropped.Load(),
		Collected:     c.stats.collected.Load(),
	}
}

// sweep removes entries nobody has referenced for gcTime.
func (c *Client) sweep(now time.Time) int {
	if c.gcTime < 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for hash, e := range c.entries {
		if len(e.subs) > 0 || e.inflight > 0 || now.Sub(e.idleSince) < c.gcTime {
			continue
		}
		e.removed = true
		delete(c.entries, hash)
		c.stats.collected.Add(1)
		c.hooks.EntryCollected(hash)
		n++
	}
	if n > 0 {
		c.log.Debug("collected idle entries", Fields{"count": n})
	}
	return n
}

// Close stops the sweep loop, cancels in-flight fetches and waits for them
// (bounded by ctx), closes all subscriptions and finally the persistence
// provider and owned generation store. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.stopCh != nil {
			c.ticker.Stop()
			close(c.stopCh)
			c.closeWg.Wait()
		}

		c.cancel()
		done := make(chan struct{})
		go func() {
			c.fetchWg.Wait()
			close(done)
		}()
		var errs []error
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("statesync: waiting for fetches: %w", ctx.Err()))
		}

		c.mu.Lock()
		for _, e := range c.entries {
			for id, o := range e.subs {
				o.shut()
				delete(e.subs, id)
			}
		}
		c.mu.Unlock()

		if c.persist != nil {
			if err := c.persist.close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
