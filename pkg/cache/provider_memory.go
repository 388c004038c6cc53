package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
)

// memoryItem represents a cached item in memory.
type memoryItem struct {
	Value      []byte
	Expiration time.Time
	LastAccess time.Time
}

func (m *memoryItem) isExpired(now time.Time) bool {
	if m.Expiration.IsZero() {
		return false
	}
	return now.After(m.Expiration)
}

// MemoryProvider is an in-memory implementation of the Provider interface.
// Items beyond MaxSize are evicted least recently used first.
type MemoryProvider struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	options *Options
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time
}

// NewMemoryProvider creates a new in-memory cache provider.
func NewMemoryProvider(opts *Options) *MemoryProvider {
	if opts == nil {
		opts = defaultOptions()
	}

	return &MemoryProvider{
		items:   make(map[string]*memoryItem),
		options: opts,
		now:     time.Now,
	}
}

// Name implements Provider.
func (m *MemoryProvider) Name() string { return ProviderMemory }

// Get retrieves a value from the cache by key.
func (m *MemoryProvider) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	item, exists := m.items[key]
	if !exists || item.isExpired(now) {
		if exists {
			delete(m.items, key)
		}
		m.misses.Add(1)
		return nil, false
	}

	item.LastAccess = now
	m.hits.Add(1)

	out := make([]byte, len(item.Value))
	copy(out, item.Value)
	return out, true
}

// Set stores a value in the cache with the specified TTL.
// A negative ttl stores the item without expiration.
func (m *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items == nil {
		m.items = make(map[string]*memoryItem)
	}

	if ttl == 0 {
		ttl = m.options.DefaultTTL
	}

	now := m.now()
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}

	if m.options.MaxSize > 0 && len(m.items) >= m.options.MaxSize {
		if _, exists := m.items[key]; !exists {
			m.evictOne(now)
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.items[key] = &memoryItem{
		Value:      stored,
		Expiration: expiration,
		LastAccess: now,
	}

	return nil
}

// Delete removes a key from the cache.
func (m *MemoryProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Clear removes all items from the cache.
func (m *MemoryProvider) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*memoryItem)
	m.hits.Store(0)
	m.misses.Store(0)
	return nil
}

// Exists checks if a key exists in the cache.
func (m *MemoryProvider) Exists(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[key]
	if !exists {
		return false
	}

	return !item.isExpired(m.now())
}

// Close closes the provider and releases any resources.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = nil
	return nil
}

// Stats returns statistics about the cache provider.
func (m *MemoryProvider) Stats(ctx context.Context) (*CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	validKeys := 0
	for _, item := range m.items {
		if !item.isExpired(now) {
			validKeys++
		}
	}

	return &CacheStats{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Keys:         int64(validKeys),
		ProviderType: ProviderMemory,
		ProviderStats: map[string]any{
			"capacity": m.options.MaxSize,
		},
	}, nil
}

// evictOne drops an expired item if there is one, otherwise the least recently used.
func (m *MemoryProvider) evictOne(now time.Time) {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			return
		}

		if oldestKey == "" || item.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.LastAccess
		}
	}

	if oldestKey != "" {
		delete(m.items, oldestKey)
	}
}

// CleanExpired removes all expired items from the cache.
func (m *MemoryProvider) CleanExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			count++
		}
	}

	return count
}

// RunCleanup removes expired items every interval until ctx is done
func (m *MemoryProvider) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanExpired(ctx); n > 0 {
				logger.Debug("Removed %d expired sessions", n)
			}
		}
	}
}
