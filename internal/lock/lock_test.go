package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

func TestLocalLockerSerializesSameOwner(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, domain.LinkOrderItem, 7)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.entries)
}

func TestLocalLockerDifferentOwnersDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, domain.LinkItemIngredient, 1)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	unlockB, err := locker.Lock(ctx, domain.LinkItemIngredient, 2)
	require.NoError(t, err)
	unlockB()

	unlockC, err := locker.Lock(ctx, domain.LinkOrderItem, 1)
	require.NoError(t, err)
	unlockC()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), domain.LinkOrderItem, 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, domain.LinkOrderItem, 3)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	unlock, err = locker.Lock(context.Background(), domain.LinkOrderItem, 3)
	require.NoError(t, err)
	unlock()
	assert.Empty(t, locker.entries)
}

func TestRedisLockerIntegration(t *testing.T) {
	addr := os.Getenv("KITCHENPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KITCHENPOS_TEST_REDIS_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := NewRedisLocker(addr, os.Getenv("KITCHENPOS_TEST_REDIS_PASSWORD"), 0, 5*time.Second)
	second := NewRedisLocker(addr, os.Getenv("KITCHENPOS_TEST_REDIS_PASSWORD"), 0, 200*time.Millisecond)
	defer first.Close()
	defer second.Close()
	require.NoError(t, first.Ping(ctx))

	ownerID := time.Now().UnixNano()
	unlock, err := first.Lock(ctx, domain.LinkItemIngredient, ownerID)
	require.NoError(t, err)

	_, err = second.Lock(ctx, domain.LinkItemIngredient, ownerID)
	require.True(t, errors.Is(err, store.ErrConflict), "expected conflict, got %v", err)

	unlock()

	unlock, err = second.Lock(ctx, domain.LinkItemIngredient, ownerID)
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerRenewsLeaseWhileHeld(t *testing.T) {
	addr := os.Getenv("KITCHENPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KITCHENPOS_TEST_REDIS_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	holder := NewRedisLocker(addr, os.Getenv("KITCHENPOS_TEST_REDIS_PASSWORD"), 0, 300*time.Millisecond)
	contender := NewRedisLocker(addr, os.Getenv("KITCHENPOS_TEST_REDIS_PASSWORD"), 0, 100*time.Millisecond)
	defer holder.Close()
	defer contender.Close()
	require.NoError(t, holder.Ping(ctx))

	ownerID := time.Now().UnixNano()
	unlock, err := holder.Lock(ctx, domain.LinkOrderItem, ownerID)
	require.NoError(t, err)

	// Held for three lease lengths; without renewal the key would be gone.
	time.Sleep(900 * time.Millisecond)
	_, err = contender.Lock(ctx, domain.LinkOrderItem, ownerID)
	require.True(t, errors.Is(err, store.ErrConflict), "expected conflict while lease is renewed, got %v", err)

	unlock()

	unlock, err = contender.Lock(ctx, domain.LinkOrderItem, ownerID)
	require.NoError(t, err)
	unlock()
}
