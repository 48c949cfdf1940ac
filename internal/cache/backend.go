package cache

import (
	"fmt"
	"io"
	"time"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Backend               string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisURL              string
	ValkeyAddr            string
}

// New builds the configured backend. The returned closer is never nil.
func New(cfg BackendConfig) (Cache, io.Closer, error) {
	switch cfg.Backend {
	case "", "in_memory":
		return NewInMemoryCache(), nopCloser{}, nil
	case "none":
		return NopCache{}, nopCloser{}, nil
	case "memcached":
		c := NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return c, c, nil
	case "redis":
		c, err := NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return c, c, nil
	case "valkey":
		c, err := NewValkeyCache(cfg.ValkeyAddr)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return c, c, nil
	}
	return nil, nopCloser{}, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
