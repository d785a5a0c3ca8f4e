package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err=%v; want ErrNilClient", err)
	}
}

func TestUnreachableServerSurfacesErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	p, err := New(Config{Client: rdb, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := p.Ping(ctx); err == nil {
		t.Fatalf("Ping should fail")
	}
	if _, ok, err := p.Get(ctx, "k"); ok || err == nil {
		t.Fatalf("Get ok=%v err=%v; want transport error", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, 0); ok || err == nil {
		t.Fatalf("Set ok=%v err=%v; want transport error", ok, err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// liveRedis connects to STATESYNC_REDIS_ADDR (default 127.0.0.1:6379) and
// skips the test when nothing answers.
func liveRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("STATESYNC_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return rdb
}

func TestRoundTripWithKeyPrefix(t *testing.T) {
	ctx := context.Background()
	rdb := liveRedis(t)
	prefix := fmt.Sprintf("test-%d:", time.Now().UnixNano())
	p, err := New(Config{Client: rdb, KeyPrefix: prefix, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rdb.Del(ctx, prefix+"query:feed:a", prefix+"query:feed:b")
		_ = p.Close(ctx)
	})
	if err := p.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := p.Get(ctx, "query:feed:a"); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "query:feed:a", []byte("frame"), 1, 0); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	if n := rdb.Exists(ctx, prefix+"query:feed:a").Val(); n != 1 {
		t.Fatalf("prefixed key missing in redis")
	}
	b, ok, err := p.Get(ctx, "query:feed:a")
	if !ok || err != nil || string(b) != "frame" {
		t.Fatalf("Get=%q ok=%v err=%v", b, ok, err)
	}
	if ttl := rdb.TTL(ctx, prefix+"query:feed:a").Val(); ttl != -1 {
		t.Fatalf("TTL=%v; want no expiry", ttl)
	}

	if _, err := p.Set(ctx, "query:feed:b", []byte("x"), 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if ttl := rdb.TTL(ctx, prefix+"query:feed:b").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL=%v; want (0, 1m]", ttl)
	}

	if err := p.Del(ctx, "query:feed:a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "query:feed:a"); ok {
		t.Fatalf("key survived Del")
	}
}
