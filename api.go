package statesync

import (
	"fmt"
	"time"

	gen "github.com/unkn0wn-root/statesync/genstore"
	pr "github.com/unkn0wn-root/statesync/provider"
)

// Options tune a Client. The zero value is a working in-memory client.
type Options struct {
	// Namespace isolates persisted keys. e.g. "feed:prod". Default "statesync".
	Namespace string

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// Retry applies to every query fetch. Zero value: no retries.
	Retry RetryPolicy
	// Ordering decides which of several overlapping fetches wins.
	Ordering Ordering
	// FetchTimeout bounds one fetch attempt; 0 => no timeout.
	FetchTimeout time.Duration

	GCTime          time.Duration // unreferenced entry lifetime; 0 => 5m, <0 => never collect
	CleanupInterval time.Duration // sweep period; 0 => 1m

	// Persistence. Provider nil => results live in memory only.
	Provider       pr.Provider
	GenStore       gen.GenStore  // nil => LocalGenStore (in-process), owned by the client
	PersistTTL     time.Duration // 0 => 24h
	GenRetention   time.Duration // LocalGenStore retention; 0 => 30d, must exceed PersistTTL
	ComputeSetCost SetCostFunc   // default 1
}

// New constructs a Client and starts its sweep loop.
func New(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return newClient(opts)
}

// validate rejects a LocalGenStore retention that could prune a bumped
// generation back to 0 while results stored under it are still alive.
func (o Options) validate() error {
	if o.Provider == nil || o.GenStore != nil {
		return nil
	}
	ttl := coalesce(o.PersistTTL, defaultPersistTTL)
	if retention := coalesce(o.GenRetention, defaultGenRetention); retention <= ttl {
		return fmt.Errorf("statesync: GenRetention %v must exceed PersistTTL %v", retention, ttl)
	}
	return nil
}

func (o Options) persister(log Logger, hooks Hooks) *persister {
	if o.Provider == nil {
		return nil
	}
	p := &persister{
		ns:       coalesce(o.Namespace, defaultNamespace),
		provider: o.Provider,
		gen:      o.GenStore,
		ttl:      coalesce(o.PersistTTL, defaultPersistTTL),
		cost:     o.ComputeSetCost,
		log:      log,
		hooks:    hooks,
	}
	if p.cost == nil {
		p.cost = func(string, []byte) int64 { return 1 }
	}
	if p.gen == nil {
		// default to in-process generations with periodic cleanup
		retention := coalesce(o.GenRetention, defaultGenRetention)
		p.gen = gen.NewLocalGenStore(coalesce(o.CleanupInterval, defaultCleanupInterval), retention)
		p.ownsGen = true
	}
	return p
}
