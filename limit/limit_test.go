package limit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekwell/llmgw"
)

func TestLimiter(t *testing.T) {
	t.Run("unlimited provider never blocks", func(t *testing.T) {
		l := New(nil)
		ctx := context.Background()

		for i := 0; i < 100; i++ {
			release, err := l.Acquire(ctx, "openai")
			require.NoError(t, err)
			release()
		}
	})

	t.Run("bounded provider blocks until release", func(t *testing.T) {
		l := New(map[string]int{"openai": 1})

		release, err := l.Acquire(context.Background(), "openai")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx, "openai")
		require.Error(t, err)
		assert.Equal(t, llmgw.ErrorTypeConcurrencyTimeout, llmgw.Classify(err))

		release()
		release2, err := l.Acquire(context.Background(), "openai")
		require.NoError(t, err)
		release2()
	})

	t.Run("limits are per provider", func(t *testing.T) {
		l := New(map[string]int{"openai": 1, "groq": 1})

		releaseOpenai, err := l.Acquire(context.Background(), "openai")
		require.NoError(t, err)
		defer releaseOpenai()

		releaseGroq, err := l.Acquire(context.Background(), "groq")
		require.NoError(t, err)
		releaseGroq()
	})

	t.Run("double release is harmless", func(t *testing.T) {
		l := New(map[string]int{"openai": 1})

		release, err := l.Acquire(context.Background(), "openai")
		require.NoError(t, err)
		release()
		release()

		release, err = l.Acquire(context.Background(), "openai")
		require.NoError(t, err)
		release()
	})
}
