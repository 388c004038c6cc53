package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheProvider is a Memcache implementation of the Provider interface.
type MemcacheProvider struct {
	client  *memcache.Client
	options *Options
}

// MemcacheConfig contains Memcache-specific configuration.
type MemcacheConfig struct {
	// Servers is a list of memcache server addresses (e.g., "localhost:11211")
	Servers []string

	// MaxIdleConns is the maximum number of idle connections (default: 2)
	MaxIdleConns int

	// Timeout for connection operations (default: 1 second)
	Timeout time.Duration

	// Options contains general cache options
	Options *Options
}

// maxMemcacheRelativeTTL is the largest expiration memcached treats as relative seconds.
const maxMemcacheRelativeTTL = 30 * 24 * time.Hour

// NewMemcacheProvider creates a new Memcache cache provider.
func NewMemcacheProvider(config *MemcacheConfig) (*MemcacheProvider, error) {
	if config == nil {
		config = &MemcacheConfig{}
	}
	if len(config.Servers) == 0 {
		config.Servers = []string{"localhost:11211"}
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 1 * time.Second
	}
	if config.Options == nil {
		config.Options = defaultOptions()
	}

	client := memcache.New(config.Servers...)
	client.MaxIdleConns = config.MaxIdleConns
	client.Timeout = config.Timeout

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Memcache: %w", err)
	}

	return &MemcacheProvider{
		client:  client,
		options: config.Options,
	}, nil
}

// Name implements Provider.
func (m *MemcacheProvider) Name() string { return ProviderMemcache }

func (m *MemcacheProvider) key(key string) string {
	return m.options.KeyPrefix + key
}

// Get retrieves a value from the cache by key.
func (m *MemcacheProvider) Get(ctx context.Context, key string) ([]byte, bool) {
	item, err := m.client.Get(m.key(key))
	if err != nil {
		return nil, false
	}
	return item.Value, true
}

// Set stores a value in the cache with the specified TTL.
func (m *MemcacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.options.DefaultTTL
	}

	item := &memcache.Item{
		Key:        m.key(key),
		Value:      value,
		Expiration: memcacheExpiration(ttl, time.Now()),
	}

	return m.client.Set(item)
}

// memcacheExpiration converts ttl to memcached's expiration field. Durations
// beyond thirty days must be sent as an absolute unix timestamp.
func memcacheExpiration(ttl time.Duration, now time.Time) int32 {
	switch {
	case ttl <= 0:
		return 0
	case ttl > maxMemcacheRelativeTTL:
		return int32(now.Add(ttl).Unix())
	case ttl < time.Second:
		return 1
	default:
		return int32(ttl.Seconds())
	}
}

// Delete removes a key from the cache.
func (m *MemcacheProvider) Delete(ctx context.Context, key string) error {
	err := m.client.Delete(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Clear removes all items from the cache.
func (m *MemcacheProvider) Clear(ctx context.Context) error {
	return m.client.FlushAll()
}

// Exists checks if a key exists in the cache.
func (m *MemcacheProvider) Exists(ctx context.Context, key string) bool {
	_, err := m.client.Get(m.key(key))
	return err == nil
}

// Close closes the provider and releases any resources.
// Idle connections are released by the client's own pool.
func (m *MemcacheProvider) Close() error {
	return nil
}

// Stats returns statistics about the cache provider.
// Memcache provider returns limited statistics.
func (m *MemcacheProvider) Stats(ctx context.Context) (*CacheStats, error) {
	return &CacheStats{
		ProviderType: ProviderMemcache,
		ProviderStats: map[string]any{
			"note": "Memcache does not provide detailed statistics through the standard client",
		},
	}, nil
}
