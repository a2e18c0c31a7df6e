package contentstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
)

func exerciseStore(t *testing.T, store usecase.ContentStore) {
	t.Helper()
	ctx := context.Background()

	a, err := store.Put(ctx, []byte(`{"b":1,"a":[true,null]}`))
	require.NoError(t, err)
	b, err := store.Put(ctx, []byte("{ \"a\": [true, null], \"b\": 1 }"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "equivalent documents share a locator")
	assert.Len(t, a, 64)

	got, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[true,null],"b":1}`, string(got))

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.Put(ctx, []byte("{not json"))
	assert.True(t, errors.Is(err, domain.ErrParse))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	doc := []byte(`{"a":1}`)
	locator, err := store.Put(ctx, doc)
	require.NoError(t, err)
	doc[2] = 'z'
	got, err := store.Get(ctx, locator)
	require.NoError(t, err)
	got[2] = 'y'
	again, err := store.Get(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(again))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	store, err := NewRedis(RedisOptions{Addr: addr, Prefix: "datatoken:test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisOptions{})
	assert.Error(t, err)
}
