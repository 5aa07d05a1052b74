package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedis(client, "uaclass", time.Minute), mr
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(fmt.Sprintf("redis://%s", mr.Addr()))
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient("not-a-redis-url")
	assert.Error(t, err)
}

func TestRedis_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "GPTBot/1.0", []byte(`{"operator":"OpenAI"}`)))

	value, ok, err := store.Get(ctx, "GPTBot/1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"operator":"OpenAI"}`), value)
}

func TestRedis_GetMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	_, ok, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "GPTBot/1.0", []byte("v")))

	assert.True(t, mr.Exists("uaclass:GPTBot/1.0"))
}

func TestRedis_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestRedis_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))
	require.NoError(t, store.Delete(ctx, "key"))

	_, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ClearOnlyTouchesOwnPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	require.NoError(t, mr.Set("other:key", "untouched"))

	require.NoError(t, store.Clear(ctx))

	size, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	assert.True(t, mr.Exists("other:key"), "entries outside the prefix must survive Clear")
}

func TestRedis_Len(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v")))
	}

	size, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, size)
}
