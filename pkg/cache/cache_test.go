package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/StrapiSpec/pkg/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestProvider(opts *Options) (*MemoryProvider, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewMemoryProvider(opts)
	p.now = clock.now
	return p, clock
}

func TestMemoryProviderGetSet(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(nil)

	require.NoError(t, p.Set(ctx, "a", []byte("one"), time.Minute))

	got, ok := p.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("one"), got)

	got[0] = 'X'
	again, _ := p.Get(ctx, "a")
	assert.Equal(t, []byte("one"), again, "stored value must not alias returned slice")

	_, ok = p.Get(ctx, "missing")
	assert.False(t, ok)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, "memory", stats.ProviderType)
}

func TestMemoryProviderExpiration(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(&Options{DefaultTTL: time.Minute})

	require.NoError(t, p.Set(ctx, "default", []byte("1"), 0))
	require.NoError(t, p.Set(ctx, "short", []byte("2"), 10*time.Second))
	require.NoError(t, p.Set(ctx, "forever", []byte("3"), -1))

	clock.t = clock.t.Add(30 * time.Second)
	assert.False(t, p.Exists(ctx, "short"))
	assert.True(t, p.Exists(ctx, "default"))

	clock.t = clock.t.Add(time.Hour)
	_, ok := p.Get(ctx, "default")
	assert.False(t, ok)
	assert.True(t, p.Exists(ctx, "forever"))

	assert.Equal(t, 1, p.CleanExpired(ctx))
}

func TestMemoryProviderEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(&Options{DefaultTTL: time.Hour, MaxSize: 2})

	require.NoError(t, p.Set(ctx, "a", []byte("a"), 0))
	clock.t = clock.t.Add(time.Second)
	require.NoError(t, p.Set(ctx, "b", []byte("b"), 0))
	clock.t = clock.t.Add(time.Second)

	// touch a so b becomes the oldest
	_, _ = p.Get(ctx, "a")
	clock.t = clock.t.Add(time.Second)

	require.NoError(t, p.Set(ctx, "c", []byte("c"), 0))

	assert.True(t, p.Exists(ctx, "a"))
	assert.False(t, p.Exists(ctx, "b"))
	assert.True(t, p.Exists(ctx, "c"))

	// overwriting an existing key never evicts
	require.NoError(t, p.Set(ctx, "c", []byte("c2"), 0))
	assert.True(t, p.Exists(ctx, "a"))
}

func TestMemoryProviderDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}

	require.NoError(t, p.Delete(ctx, "k0"))
	require.NoError(t, p.Delete(ctx, "never-set"))
	assert.False(t, p.Exists(ctx, "k0"))

	require.NoError(t, p.Clear(ctx))
	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Keys)
	assert.Zero(t, stats.Hits)
}

func TestCacheJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryProvider(nil))
	defer c.Close()

	type record struct {
		ID    string   `json:"id"`
		Items []string `json:"items"`
	}

	in := record{ID: "s1", Items: []string{"title", "slug"}}
	require.NoError(t, c.Set(ctx, "s1", in, time.Minute))

	var out record
	require.NoError(t, c.Get(ctx, "s1", &out))
	assert.Equal(t, in, out)

	err := c.Get(ctx, "nope", &out)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(config.SessionsConfig{Provider: "memory", TTL: time.Hour, MaxSize: 5})
	require.NoError(t, err)
	assert.Equal(t, ProviderMemory, p.Name())

	p, err = NewProviderFromConfig(config.SessionsConfig{})
	require.NoError(t, err)
	assert.Equal(t, ProviderMemory, p.Name())

	_, err = NewProviderFromConfig(config.SessionsConfig{Provider: "etcd"})
	assert.Error(t, err)
}

func TestMemcacheExpiration(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		ttl  time.Duration
		want int32
	}{
		{"no expiry", -1, 0},
		{"sub-second rounds up", 200 * time.Millisecond, 1},
		{"relative", time.Hour, 3600},
		{"absolute beyond thirty days", 31 * 24 * time.Hour, int32(now.Add(31 * 24 * time.Hour).Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, memcacheExpiration(tt.ttl, now))
		})
	}
}

func TestMemoryProviderRunCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, clock := newTestProvider(&Options{DefaultTTL: time.Minute, MaxSize: 10})
	require.NoError(t, p.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, p.Set(ctx, "b", []byte("2"), -1))
	clock.t = clock.t.Add(2 * time.Minute)

	go p.RunCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.items) == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, p.Exists(ctx, "b"))
}
