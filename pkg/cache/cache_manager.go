package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("key not found")

// Cache wraps a Provider and stores values as JSON.
type Cache struct {
	provider Provider
}

// NewCache creates a new cache manager with the specified provider.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
	}
}

// Provider returns the underlying provider.
func (c *Cache) Provider() Provider {
	return c.provider
}

// Get retrieves and deserializes a value from the cache.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, exists := c.provider.Get(ctx, key)
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	return nil
}

// Set serializes and stores a value in the cache with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}

	return c.provider.Set(ctx, key, data, ttl)
}

// Delete removes a key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.provider.Delete(ctx, key)
}

// Exists checks if a key exists in the cache.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	return c.provider.Exists(ctx, key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear(ctx context.Context) error {
	return c.provider.Clear(ctx)
}

// Stats returns statistics about the cache.
func (c *Cache) Stats(ctx context.Context) (*CacheStats, error) {
	return c.provider.Stats(ctx)
}

// Close closes the cache and releases any resources.
func (c *Cache) Close() error {
	return c.provider.Close()
}
