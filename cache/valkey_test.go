package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

func TestValkeyStore(t *testing.T) {
	t.Run("Set with TTL", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("SET", "llmgw:cache:abc", "cached text", "EX", "60")).
			Return(valkeymock.Result(valkeymock.ValkeyString("OK")))

		err := store.Set(ctx, "llmgw:cache:abc", []byte("cached text"), time.Minute)
		assert.NoError(t, err)
	})

	t.Run("Get hit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("GET", "llmgw:cache:abc")).
			Return(valkeymock.Result(valkeymock.ValkeyBlobString("cached text")))

		value, err := store.Get(ctx, "llmgw:cache:abc")
		assert.NoError(t, err)
		assert.Equal(t, []byte("cached text"), value)
	})

	t.Run("Get miss returns nil without error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.Match("GET", "llmgw:cache:missing")).
			Return(valkeymock.Result(valkeymock.ValkeyNil()))

		value, err := store.Get(ctx, "llmgw:cache:missing")
		assert.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Get propagates errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, gomock.Any()).
			Return(valkeymock.ErrorResult(fmt.Errorf("connection refused")))

		value, err := store.Get(ctx, "llmgw:cache:abc")
		assert.Error(t, err)
		assert.Nil(t, value)
	})
}
