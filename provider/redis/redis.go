// Package redis persists query results in Redis, so several feedctl runs or
// processes can hydrate from one another. Pair it with
// genstore.RedisGenStore on the same server so invalidations are shared too.
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/statesync/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	owns   bool

	closeOnce sync.Once
	closeErr  error
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	// KeyPrefix is prepended to every stored key, e.g. "feedctl:".
	KeyPrefix string
	// CloseClient hands the client to the provider; Close then closes it.
	CloseClient bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.KeyPrefix, owns: cfg.CloseClient}, nil
}

func (p *Redis) key(k string) string { return p.prefix + k }

// Ping checks connectivity; feedctl calls it at startup to fail fast.
func (p *Redis) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set always stores the frame; Redis applies its own eviction policy, so the
// cost is ignored. ttl <= 0 keeps the key until it is deleted.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if err := p.rdb.Set(ctx, p.key(key), value, max(ttl, 0)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Del unlinks the key so large frames are reclaimed off the main thread.
func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Unlink(ctx, p.key(key)).Err()
}

// Close closes the client when the provider owns it. Idempotent.
func (p *Redis) Close(context.Context) error {
	p.closeOnce.Do(func() {
		if !p.owns {
			return
		}
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			p.closeErr = err
		}
	})
	return p.closeErr
}
