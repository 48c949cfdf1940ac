package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCache implements Cache on a Valkey server.
type ValkeyCache struct {
	client valkey.Client
}

// NewValkeyCache connects to addr. valkey-go dials eagerly, so an
// unreachable server fails here.
func NewValkeyCache(addr string) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &ValkeyCache{client: client}, nil
}

// Get implements Cache.Get.
func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(keyPrefix+key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Set implements Cache.Set.
func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	cmd := c.client.B().Set().Key(keyPrefix + key).Value(valkey.BinaryString(value)).Ex(ttl).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Ping checks the server is reachable.
func (c *ValkeyCache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *ValkeyCache) Close() error {
	c.client.Close()
	return nil
}
