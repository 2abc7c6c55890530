package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := Open(context.Background(), Options{RedisURL: "redis://" + mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return mr, s
}

func TestOpen_ReachableRedis(t *testing.T) {
	_, s := newTestRedis(t)
	assert.Equal(t, ModeRedis, s.Mode())
}

func TestOpen_UnreachableRedisFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s := Open(context.Background(), Options{RedisURL: "redis://" + addr})
	defer s.Close()
	assert.Equal(t, ModeMemory, s.Mode())
}

func TestRedisStore_GetSetTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	require.True(t, s.Set(ctx, "ai:k", []byte("v"), time.Second))
	got, ok := s.Get(ctx, "ai:k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, time.Second, mr.TTL("ai:k"))

	mr.FastForward(1100 * time.Millisecond)
	_, ok = s.Get(ctx, "ai:k")
	assert.False(t, ok)
}

func TestRedisStore_RejectsNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	assert.False(t, s.Set(ctx, "k", []byte("v"), 0))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)

	s.Set(ctx, "k", []byte("v"), time.Minute)
	assert.True(t, s.Delete(ctx, "k"))
	assert.False(t, s.Delete(ctx, "k"))
}

func TestRedisStore_ClearPattern(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedis(t)

	for _, u := range []string{"https://a", "https://b", "https://c"} {
		s.Set(ctx, PageKey(u), []byte("x"), time.Minute)
	}
	s.Set(ctx, AIKey("q"), []byte("y"), time.Minute)

	assert.Equal(t, 3, s.ClearPattern(ctx, "page:*"))
	_, ok := s.Get(ctx, AIKey("q"))
	assert.True(t, ok)
}

func TestRedisStore_ErrorsDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	s.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, 0, s.ClearPattern(ctx, "*"))
}
