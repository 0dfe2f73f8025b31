package lock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/mate-bot/internal/common"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var inside, maxInside int32

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			unlock, err := k.Lock(context.Background(), "collective:1")
			if err != nil {
				return err
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.Len())
}

func TestKeyedDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedTimeoutReturnsBusy(t *testing.T) {
	k := NewKeyed()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, common.ErrBusy)

	unlock()
	unlock() // повторный вызов ничего не ломает
	assert.Equal(t, 0, k.Len())

	again, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}
