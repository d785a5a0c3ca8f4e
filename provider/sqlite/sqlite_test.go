package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{Path: filepath.Join(t.TempDir(), "cache", "feedctl.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestProvider_SetGetDel(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, ok, err := p.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k", []byte("v1"), 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// upsert replaces
	_, err = p.Set(ctx, "k", []byte("v2"), 1, time.Hour)
	require.NoError(t, err)

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), b)

	require.NoError(t, p.Del(ctx, "k"))
	_, ok, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, p.Del(ctx, "k"), "deleting a missing key is not an error")
}

func TestProvider_Expiry(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	_, err := p.Set(ctx, "short", []byte("a"), 1, time.Minute)
	require.NoError(t, err)
	_, err = p.Set(ctx, "long", []byte("b"), 1, time.Hour)
	require.NoError(t, err)
	_, err = p.Set(ctx, "forever", []byte("c"), 1, 0)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, ok, err := p.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired row served")

	_, err = p.Set(ctx, "short2", []byte("d"), 1, time.Second)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)

	n, err := p.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // long + short2

	_, ok, err = p.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProvider_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feedctl.db")

	p, err := New(Config{Path: path})
	require.NoError(t, err)
	_, err = p.Set(ctx, "k", []byte("frame"), 1, 0)
	require.NoError(t, err)
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx), "Close is idempotent")

	p2, err := New(Config{Path: path})
	require.NoError(t, err)
	defer p2.Close(ctx)
	b, ok, err := p2.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "frame", string(b))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
