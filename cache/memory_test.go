package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		mockClock := clock.NewMock()
		store, stop := newMemoryStoreWithClock(1024, mockClock)
		defer stop()

		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "k", []byte("cached text"), time.Hour))

		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("cached text"), value)
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		mockClock := clock.NewMock()
		store, stop := newMemoryStoreWithClock(1024, mockClock)
		defer stop()

		value, err := store.Get(context.Background(), "absent")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("expired entries are dropped by cleanup", func(t *testing.T) {
		mockClock := clock.NewMock()
		store, stop := newMemoryStoreWithClock(1024, mockClock)
		defer stop()

		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

		mockClock.Add(6 * time.Minute)

		store.mu.Lock()
		_, exists := store.entries["k"]
		store.mu.Unlock()
		assert.False(t, exists)
	})

	t.Run("eviction frees the least used entries first", func(t *testing.T) {
		mockClock := clock.NewMock()
		store, stop := newMemoryStoreWithClock(3*entrySize("key-0", []byte("value")), mockClock)
		defer stop()

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Set(ctx, fmt.Sprintf("key-%d", i), []byte("value"), time.Hour))
			mockClock.Add(time.Second)
		}

		// Bump key-0 and key-2 so key-1 is the least recently read.
		_, err := store.Get(ctx, "key-0")
		require.NoError(t, err)
		_, err = store.Get(ctx, "key-2")
		require.NoError(t, err)

		require.NoError(t, store.Set(ctx, "key-3", []byte("value"), time.Hour))

		value, err := store.Get(ctx, "key-1")
		require.NoError(t, err)
		assert.Nil(t, value)

		value, err = store.Get(ctx, "key-0")
		require.NoError(t, err)
		assert.NotNil(t, value)
	})
}
