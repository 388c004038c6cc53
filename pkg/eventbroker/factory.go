package eventbroker

import (
	"fmt"
	"strings"

	"github.com/bitechdev/StrapiSpec/pkg/config"
)

// DefaultChannel is the Redis channel and NATS subject session events use
const DefaultChannel = "strapispec.sessions"

// Provider names accepted in configuration
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
	ProviderNATS   = "nats"
)

// NewProviderFromConfig builds the provider selected by the events section.
// Remote providers verify connectivity before returning.
func NewProviderFromConfig(cfg config.EventsConfig, instanceID string) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderMemory:
		return NewMemoryProvider(), nil
	case ProviderRedis:
		provider, err := NewRedisProvider(RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Channel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis event provider: %w", err)
		}
		return provider, nil
	case ProviderNATS:
		provider, err := NewNATSProvider(NATSConfig{
			URL:        cfg.NATS.URL,
			Subject:    cfg.Channel,
			InstanceID: instanceID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize NATS event provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown event provider: %s", cfg.Provider)
	}
}
