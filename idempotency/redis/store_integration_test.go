//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-engine/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertIfAbsent_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	store := CreateTestStore(t, redisContainer.Addr)
	defer store.Close()

	t.Run("first insert wins, second loses", func(t *testing.T) {
		rec := idempotency.Record{
			Key:       "key-insert",
			Status:    idempotency.Pending,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Minute),
		}

		inserted, err := store.InsertIfAbsent(ctx, "key-insert", rec, time.Minute)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = store.InsertIfAbsent(ctx, "key-insert", rec, time.Minute)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("expired key is claimable again", func(t *testing.T) {
		rec := idempotency.Record{
			Key:       "key-expiry",
			Status:    idempotency.Pending,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Second),
		}

		inserted, err := store.InsertIfAbsent(ctx, "key-expiry", rec, time.Second)
		require.NoError(t, err)
		require.True(t, inserted)

		time.Sleep(1500 * time.Millisecond)

		inserted, err = store.InsertIfAbsent(ctx, "key-expiry", rec, time.Minute)
		require.NoError(t, err)
		assert.True(t, inserted)
	})
}

func TestStore_GetUpdate_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	store := CreateTestStore(t, redisContainer.Addr)
	defer store.Close()

	t.Run("round trip through update", func(t *testing.T) {
		created := time.Now().UTC().Truncate(time.Second)
		pending := idempotency.Record{
			Key:       "key-rt",
			Status:    idempotency.Pending,
			CreatedAt: created,
			ExpiresAt: created.Add(10 * time.Second),
		}

		inserted, err := store.InsertIfAbsent(ctx, "key-rt", pending, 10*time.Second)
		require.NoError(t, err)
		require.True(t, inserted)

		completed := pending
		completed.Status = idempotency.Completed
		completed.Result = []byte(`{"processed":true}`)
		completed.ExpiresAt = created.Add(24 * time.Hour)
		require.NoError(t, store.Update(ctx, "key-rt", completed))

		got, ok, err := store.Get(ctx, "key-rt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, idempotency.Completed, got.Status)
		assert.Equal(t, []byte(`{"processed":true}`), got.Result)
	})

	t.Run("missing key is absent, not an error", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "never-written")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCoordinator_Redis_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	store := CreateTestStore(t, redisContainer.Addr)
	defer store.Close()

	t.Run("single flight over a real store", func(t *testing.T) {
		coord := idempotency.NewCoordinator(store, idempotency.Config{})

		executions := 0
		work := func(ctx context.Context) ([]byte, error) {
			executions++
			return []byte("result"), nil
		}

		first, err := coord.ProcessOnce(ctx, "coord-key", time.Hour, work)
		require.NoError(t, err)
		second, err := coord.ProcessOnce(ctx, "coord-key", time.Hour, work)
		require.NoError(t, err)

		assert.False(t, first.WasDuplicate)
		assert.True(t, second.WasDuplicate)
		assert.Equal(t, 1, executions)
	})
}
