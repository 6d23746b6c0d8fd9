package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewClient(&Config{Address: "127.0.0.1:1"})
		assert.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		client, err := NewClient(&Config{Address: mr.Addr()})
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, client.config.PoolSize)
	})
}

func TestClient_SetGet(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "key", "value", 0))

	got, err := client.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestClient_GetMissing(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_Exists(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "key", "value", 0))

	exists, err := client.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.Exists(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_Delete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Set(ctx, "b", "2", 0))

	require.NoError(t, client.Delete(ctx, "a", "b"))
	require.NoError(t, client.Delete(ctx)) // no-op

	_, err := client.Get(ctx, "a")
	assert.True(t, IsNotFound(err))
}

func TestClient_KeysByPrefix(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "enrich:2024-01:a", "1", 0))
	require.NoError(t, client.Set(ctx, "enrich:2024-01:b", "2", 0))
	require.NoError(t, client.Set(ctx, "enrich:2024-02:c", "3", 0))

	keys, err := client.Keys(ctx, "enrich:2024-01:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"enrich:2024-01:a", "enrich:2024-01:b"}, keys)
}

func TestClient_Health(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.Health())
}
