package statesync

import (
	"context"
	"sync"
	"time"
)

// MutationFunc performs one side-effecting request.
type MutationFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

type MutationOptions[In, Out any] struct {
	// Name labels logs. e.g. "follow".
	Name string
	Fn   MutationFunc[In, Out]

	// Invalidates lists key prefixes invalidated after a success, before
	// OnSuccess runs. Invalidation failures are logged, not returned.
	Invalidates []Key

	OnSuccess func(ctx context.Context, in In, out Out)
	OnError   func(ctx context.Context, in In, err error)
	OnSettled func(ctx context.Context, in In, out Out, err error)

	// Retry defaults to no retries.
	Retry RetryPolicy
}

// MutationState is the observable state of a Mutation.
type MutationState[Out any] struct {
	Status      MutationStatus
	Data        Out
	Err         error
	SubmittedAt time.Time
}

func (s MutationState[Out]) IsPending() bool { return s.Status == MutationPending }

// Mutation runs a one-shot operation and tracks the state of the most recent
// Trigger. It has no persisted identity.
type Mutation[In, Out any] struct {
	c    *Client
	opts MutationOptions[In, Out]

	mu    sync.Mutex
	seq   uint64
	state MutationState[Out]
}

func NewMutation[In, Out any](c *Client, opts MutationOptions[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{c: c, opts: opts}
}

// State returns the state of the latest Trigger.
func (m *Mutation[In, Out]) State() MutationState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the mutation to idle. A Trigger still running no longer
// updates the state.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	m.seq++
	m.state = MutationState[Out]{}
	m.mu.Unlock()
}

// Trigger runs the mutation and returns its result. On success the configured
// prefixes are invalidated; a failed mutation invalidates nothing.
func (m *Mutation[In, Out]) Trigger(ctx context.Context, in In) (Out, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.state = MutationState[Out]{Status: MutationPending, SubmittedAt: m.c.now()}
	m.mu.Unlock()

	out, err := m.run(ctx, in)

	if err == nil {
		for _, k := range m.opts.Invalidates {
			if _, ierr := m.c.Invalidate(ctx, k); ierr != nil {
				m.c.log.Warn("mutation invalidate failed", keyFields(k, "mutation", m.opts.Name, "err", ierr))
			}
		}
		if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(ctx, in, out)
		}
	} else {
		m.c.log.Debug("mutation failed", Fields{"mutation": m.opts.Name, "err": err})
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, in, err)
		}
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, in, out, err)
	}

	m.mu.Lock()
	if seq == m.seq {
		m.state.Data = out
		m.state.Err = err
		if err == nil {
			m.state.Status = MutationSuccess
		} else {
			m.state.Status = MutationError
		}
	}
	m.mu.Unlock()
	return out, err
}

// TriggerAsync runs Trigger on a new goroutine. The returned channel is
// closed when it finishes; the outcome is read from State.
func (m *Mutation[In, Out]) TriggerAsync(ctx context.Context, in In) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Trigger(ctx, in)
	}()
	return done
}

func (m *Mutation[In, Out]) run(ctx context.Context, in In) (Out, error) {
	if m.opts.Fn == nil {
		var zero Out
		return zero, ErrNilFetch
	}
	obs := func(attempt int, err error, retryIn time.Duration, willRetry bool) {
		if willRetry {
			m.c.log.Debug("mutation failed; retrying", Fields{"mutation": m.opts.Name, "attempt": attempt, "in": retryIn, "err": err})
		}
	}
	return withRetry(ctx, m.opts.Retry, obs, func(ctx context.Context) (Out, error) {
		return m.opts.Fn(ctx, in)
	})
}
