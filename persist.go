package statesync

import (
	"context"
	"errors"
	"sync"
	"time"

	gen "github.com/unkn0wn-root/statesync/genstore"
	"github.com/unkn0wn-root/statesync/internal/util"
	"github.com/unkn0wn-root/statesync/internal/wire"
	pr "github.com/unkn0wn-root/statesync/provider"
)

// SetCostFunc returns the cost charged to the provider for one stored frame.
type SetCostFunc func(storageKey string, raw []byte) int64

// persister stores successful query results in a provider, guarded by
// generations.
//
// A result is tagged with the sum of the generations of every prefix of its
// key, observed when its fetch started. Invalidate(prefix) bumps the
// generation of prefix, so the sum of every key under it moves:
//   - a fetch that started before the invalidation cannot persist its result
//     (write iff current sum == observed sum);
//   - a result stored before the invalidation no longer matches and is
//     deleted the next time it is read, even by another process sharing the
//     GenStore (genstore.RedisGenStore, sqlite.GenStore).
type persister struct {
	ns       string
	provider pr.Provider
	gen      gen.GenStore
	ownsGen  bool
	ttl      time.Duration
	cost     SetCostFunc
	log      Logger
	hooks    Hooks

	// mu is held shared by provider calls and exclusively by close, so no
	// call reaches a closed provider.
	mu     sync.RWMutex
	closed bool
}

var errPersistClosed = errors.New("statesync: persistence closed")

// enter reports whether the provider is still open. On true the caller
// must call p.mu.RUnlock when done.
func (p *persister) enter() bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	return true
}

func (p *persister) storageKey(k Key) string {
	return util.StorageKey("query:"+p.ns, k.String())
}

// observe returns the generation sum over all prefixes of k.
func (p *persister) observe(ctx context.Context, k Key) (uint64, error) {
	prefixes := k.prefixes()
	keys := make([]string, len(prefixes))
	for i, pk := range prefixes {
		keys[i] = p.storageKey(pk)
	}
	gens, err := p.gen.SnapshotMany(ctx, keys)
	if err != nil {
		p.log.Warn("gen snapshot error", keyFields(k, "err", err))
		return 0, err
	}
	var sum uint64
	for _, sk := range keys {
		sum += gens[sk]
	}
	return sum, nil
}

// load returns the stored result for k if it is still valid for the current
// generations. Invalid frames are deleted (self-heal).
func (p *persister) load(ctx context.Context, k Key) (wire.Result, bool) {
	if !p.enter() {
		return wire.Result{}, false
	}
	defer p.mu.RUnlock()
	sk := p.storageKey(k)
	raw, ok, err := p.provider.Get(ctx, sk)
	if err != nil {
		p.log.Warn("persisted read failed", keyFields(k, "err", err))
		return wire.Result{}, false
	}
	if !ok {
		return wire.Result{}, false
	}
	r, err := wire.DecodeResult(raw)
	if err != nil {
		p.heal(ctx, sk, "corrupt")
		return wire.Result{}, false
	}
	cur, err := p.observe(ctx, k)
	if err != nil {
		// Conservative: neither serve nor delete while gens are unknown.
		return wire.Result{}, false
	}
	if r.Gen != cur {
		p.heal(ctx, sk, "gen_mismatch")
		return wire.Result{}, false
	}
	return r, true
}

func (p *persister) heal(ctx context.Context, storageKey, reason string) {
	_ = p.provider.Del(ctx, storageKey)
	p.hooks.SelfHeal(storageKey, reason)
	p.log.Debug("persisted result dropped", Fields{"storageKey": storageKey, "reason": reason})
}

// discard deletes the stored result of k after its payload failed to decode.
func (p *persister) discard(ctx context.Context, k Key, reason string) {
	if !p.enter() {
		return
	}
	defer p.mu.RUnlock()
	p.heal(ctx, p.storageKey(k), reason)
}

// save writes payload for k iff the generation sum still equals observed.
func (p *persister) save(ctx context.Context, k Key, payload []byte, updatedAt time.Time, observed uint64) error {
	if !p.enter() {
		return errPersistClosed
	}
	defer p.mu.RUnlock()
	cur, err := p.observe(ctx, k)
	if err != nil {
		return err
	}
	if cur != observed {
		// invalidated while the fetch was in flight; skip stale write
		p.log.Debug("persist skipped (gen mismatch)", keyFields(k, "obs", observed, "cur", cur))
		return nil
	}
	sk := p.storageKey(k)
	raw := wire.EncodeResult(observed, updatedAt, payload)
	ok, err := p.provider.Set(ctx, sk, raw, p.cost(sk, raw), p.ttl)
	if err != nil {
		return err
	}
	if !ok {
		p.hooks.PersistRejected(sk)
		p.log.Debug("persist rejected by provider (pressure)", keyFields(k))
	}
	return nil
}

// bump moves the generation of prefix, which hides every stored result
// under it, including keys persisted by other processes.
func (p *persister) bump(ctx context.Context, prefix Key) error {
	if !p.enter() {
		return errPersistClosed
	}
	defer p.mu.RUnlock()
	psk := p.storageKey(prefix)
	g, err := p.gen.Bump(ctx, psk)
	if err != nil {
		p.hooks.GenBumpError(psk, err)
		p.log.Error("gen bump error", keyFields(prefix, "err", err))
		return err
	}
	p.log.Debug("bumped prefix generation", keyFields(prefix, "newGen", g))
	return nil
}

// drop deletes the stored results of keys.
func (p *persister) drop(ctx context.Context, keys []Key) error {
	if !p.enter() {
		return errPersistClosed
	}
	defer p.mu.RUnlock()
	var errs []error
	for _, k := range keys {
		if err := p.provider.Del(ctx, p.storageKey(k)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	if p.ownsGen {
		errs = append(errs, p.gen.Close(ctx))
	}
	errs = append(errs, p.provider.Close(ctx))
	return errors.Join(errs...)
}
