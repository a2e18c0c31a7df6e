package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Each(t *testing.T) {
	pool, err := New("test", 4, nil)
	require.NoError(t, err)
	defer pool.Release(time.Second)

	var sum atomic.Int64
	require.NoError(t, pool.Each(context.Background(), 100, func(ctx context.Context, i int) {
		sum.Add(int64(i))
	}))
	assert.Equal(t, int64(4950), sum.Load())
	assert.Equal(t, 4, pool.Stats().Cap)
}

func TestPool_EachRecoversPanics(t *testing.T) {
	pool, err := New("test", 2, nil)
	require.NoError(t, err)
	defer pool.Release(time.Second)

	var ran atomic.Int32
	require.NoError(t, pool.Each(context.Background(), 3, func(ctx context.Context, i int) {
		ran.Add(1)
		if i == 1 {
			panic("boom")
		}
	}))
	assert.Equal(t, int32(3), ran.Load())
}

func TestPool_EachCanceled(t *testing.T) {
	pool, err := New("test", 2, nil)
	require.NoError(t, err)
	defer pool.Release(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	err = pool.Each(ctx, 10, func(ctx context.Context, i int) { ran.Add(1) })
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran.Load())
}

func TestPool_Closed(t *testing.T) {
	pool, err := New("test", 2, nil)
	require.NoError(t, err)
	pool.Release(time.Second)

	err = pool.Each(context.Background(), 1, func(ctx context.Context, i int) {})
	require.ErrorIs(t, err, ErrPoolClosed)
}
