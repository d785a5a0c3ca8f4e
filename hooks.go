package statesync

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the client calls some of
// them while holding its lock. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A fetch attempt failed. attempt is 1-based.
	FetchFailed(key string, attempt int, err error)

	// A failed fetch will run again after delay.
	RetryScheduled(key string, attempt int, delay time.Duration)

	// A completion was discarded under LastIssued ordering because a fetch
	// issued later had already been applied.
	StaleResultDropped(key string, issued, applied uint64)

	// Invalidate matched entries under prefix; refetched of them had subscribers.
	Invalidated(prefix string, matched, refetched int)

	// An unreferenced entry was removed by the sweep.
	EntryCollected(key string)

	// A persisted value was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	PersistRejected(storageKey string)

	// GenStore bump failed during Invalidate.
	GenBumpError(storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchFailed(string, int, error)              {}
func (NopHooks) RetryScheduled(string, int, time.Duration)   {}
func (NopHooks) StaleResultDropped(string, uint64, uint64)   {}
func (NopHooks) Invalidated(string, int, int)                {}
func (NopHooks) EntryCollected(string)                       {}
func (NopHooks) SelfHeal(string, string)                     {}
func (NopHooks) PersistRejected(string)                      {}
func (NopHooks) GenBumpError(string, error)                  {}
