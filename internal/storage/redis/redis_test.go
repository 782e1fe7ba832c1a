package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/kv"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestStore_GetSet(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := New(client, "storefront:", 0)
	ctx := context.Background()

	_, err := s.Get(ctx, "abc:cart")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "abc:cart", `[]`))

	got, err := s.Get(ctx, "abc:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)

	raw, err := mr.Get("storefront:abc:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, raw)
	assert.Zero(t, mr.TTL("storefront:abc:cart"))
}

func TestStore_TTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := New(client, "", time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v"))
	assert.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := New(client, "", 0)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, kv.ErrNotFound)
	assert.Error(t, s.Ping(context.Background()))
}
