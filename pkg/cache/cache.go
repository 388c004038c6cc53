package cache

import (
	"fmt"
	"strings"

	"github.com/bitechdev/StrapiSpec/pkg/config"
)

// Provider names accepted in configuration
const (
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderMemcache = "memcache"
)

// keyPrefix namespaces session keys on shared Redis/Memcache servers
const keyPrefix = "strapispec:"

// NewProviderFromConfig builds the provider selected by the sessions section.
// Remote providers verify connectivity before returning.
func NewProviderFromConfig(cfg config.SessionsConfig) (Provider, error) {
	opts := &Options{
		DefaultTTL: cfg.TTL,
		MaxSize:    cfg.MaxSize,
		KeyPrefix:  keyPrefix,
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderMemory:
		opts.KeyPrefix = ""
		return NewMemoryProvider(opts), nil
	case ProviderRedis:
		provider, err := NewRedisProvider(&RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Options:  opts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis provider: %w", err)
		}
		return provider, nil
	case ProviderMemcache:
		provider, err := NewMemcacheProvider(&MemcacheConfig{
			Servers:      cfg.Memcache.Servers,
			MaxIdleConns: cfg.Memcache.MaxIdleConns,
			Timeout:      cfg.Memcache.Timeout,
			Options:      opts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Memcache provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown cache provider: %s", cfg.Provider)
	}
}
