package cache

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore is a Store backed by a shared Valkey instance, for deployments
// where multiple gateway processes should share one response cache.
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Do(
		ctx, s.client.B().Set().
			Key(key).
			Value(valkey.BinaryString(value)).
			Ex(ttl).
			Build(),
	).Error()
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	response := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := response.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return response.AsBytes()
}
