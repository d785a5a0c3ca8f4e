package genstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// liveRedis connects to STATESYNC_REDIS_ADDR (default 127.0.0.1:6379) and
// skips the test when nothing answers.
func liveRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("STATESYNC_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testNamespace(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func newRedisStore(t *testing.T, rdb redis.UniversalClient, ns string, ttl time.Duration) *RedisGenStore {
	t.Helper()
	s, err := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: ns, TTL: ttl})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewRedisGenStoreRequiresClient(t *testing.T) {
	if _, err := NewRedisGenStore(RedisConfig{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisBumpAndSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	ns := testNamespace(t)
	s := newRedisStore(t, rdb, ns, 0)
	t.Cleanup(func() { rdb.Del(ctx, s.key("a"), s.key("b")) })

	if g, err := s.Snapshot(ctx, "a"); err != nil || g != 0 {
		t.Fatalf("missing key: gen=%d err=%v", g, err)
	}
	for want := uint64(1); want <= 2; want++ {
		g, err := s.Bump(ctx, "a")
		if err != nil || g != want {
			t.Fatalf("Bump: gen=%d err=%v; want %d", g, err, want)
		}
	}
	if _, err := s.Bump(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := s.SnapshotMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got["a"] != 2 || got["b"] != 1 || got["c"] != 0 {
		t.Fatalf("SnapshotMany=%v; want a=2,b=1,c=0", got)
	}
	if empty, err := s.SnapshotMany(ctx, nil); err != nil || len(empty) != 0 {
		t.Fatalf("SnapshotMany(nil)=%v err=%v", empty, err)
	}
	if ttl := rdb.TTL(ctx, s.key("a")).Val(); ttl != -1 {
		t.Fatalf("TTL=%v; want no expiry", ttl)
	}
}

func TestRedisGenerationsAreSharedPerNamespace(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	ns := testNamespace(t)
	first := newRedisStore(t, rdb, ns, 0)
	second := newRedisStore(t, rdb, ns, 0)
	other := newRedisStore(t, rdb, ns+"-other", 0)
	t.Cleanup(func() { rdb.Del(ctx, first.key("k"), other.key("k")) })

	if _, err := first.Bump(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if g, _ := second.Snapshot(ctx, "k"); g != 1 {
		t.Fatalf("second store gen=%d; want 1", g)
	}
	if g, _ := other.Snapshot(ctx, "k"); g != 0 {
		t.Fatalf("other namespace gen=%d; want 0", g)
	}
}

func TestRedisBumpRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	s := newRedisStore(t, rdb, testNamespace(t), time.Hour)
	t.Cleanup(func() { rdb.Del(ctx, s.key("k")) })

	if g, err := s.Bump(ctx, "k"); err != nil || g != 1 {
		t.Fatalf("Bump: gen=%d err=%v", g, err)
	}
	if ttl := rdb.TTL(ctx, s.key("k")).Val(); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("TTL=%v; want (0, 1h]", ttl)
	}
}

func TestRedisSnapshotRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	s := newRedisStore(t, rdb, testNamespace(t), 0)
	t.Cleanup(func() { rdb.Del(ctx, s.key("k")) })

	rdb.Set(ctx, s.key("k"), "not-a-number", 0)
	if _, err := s.Snapshot(ctx, "k"); err == nil {
		t.Fatalf("Snapshot: expected parse error")
	}
	if _, err := s.SnapshotMany(ctx, []string{"k"}); err == nil {
		t.Fatalf("SnapshotMany: expected parse error")
	}
}

func TestRedisCloseLeavesSharedClientOpen(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	s := newRedisStore(t, rdb, testNamespace(t), 0)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("client closed by a store that does not own it: %v", err)
	}
}
