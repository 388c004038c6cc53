package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manager handles configuration loading from multiple sources
type Manager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager with defaults
func NewManager() *Manager {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/strapispec")
	v.AddConfigPath("$HOME/.strapispec")

	// STRAPISPEC_STRAPI_API_KEY -> strapi.api_key
	v.SetEnvPrefix("STRAPISPEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Manager{v: v}
}

// NewManagerWithOptions creates a new configuration manager with custom options
func NewManagerWithOptions(opts ...Option) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfigFile sets a specific config file path
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.v.SetConfigFile(path)
	}
}

// WithConfigName sets the config file name (without extension)
func WithConfigName(name string) Option {
	return func(m *Manager) {
		m.v.SetConfigName(name)
	}
}

// WithConfigPath adds a path to search for config files
func WithConfigPath(path string) Option {
	return func(m *Manager) {
		m.v.AddConfigPath(path)
	}
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.v.SetEnvPrefix(prefix)
	}
}

// Load reads the config file if there is one. A missing file is not an error,
// defaults and environment variables still apply.
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// GetConfig returns the complete, validated configuration
func (m *Manager) GetConfig() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Get returns a configuration value by key
func (m *Manager) Get(key string) interface{} {
	return m.v.Get(key)
}

// GetString returns a string configuration value
func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// GetInt returns an int configuration value
func (m *Manager) GetInt(key string) int {
	return m.v.GetInt(key)
}

// GetBool returns a bool configuration value
func (m *Manager) GetBool(key string) bool {
	return m.v.GetBool(key)
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Sessions.Provider {
	case "memory", "redis", "memcache":
	default:
		return fmt.Errorf("sessions.provider must be one of memory, redis, memcache (got %q)", c.Sessions.Provider)
	}
	switch c.Events.Provider {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("events.provider must be one of memory, redis, nats (got %q)", c.Events.Provider)
	}

	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl must be non-negative")
	}

	if c.Strapi.Timeout <= 0 {
		return fmt.Errorf("strapi.timeout must be positive")
	}

	if c.Middleware.RateLimitRPS < 0 || c.Middleware.RateLimitBurst < 0 {
		return fmt.Errorf("middleware rate limits must be non-negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.gzip", true)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.drain_timeout", "25s")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("strapi.url", "")
	v.SetDefault("strapi.api_key", "")
	v.SetDefault("strapi.timeout", "15s")

	v.SetDefault("sessions.provider", "memory")
	v.SetDefault("sessions.ttl", "24h")
	v.SetDefault("sessions.max_size", 10000)
	v.SetDefault("sessions.redis.host", "localhost")
	v.SetDefault("sessions.redis.port", 6379)
	v.SetDefault("sessions.redis.password", "")
	v.SetDefault("sessions.redis.db", 0)
	v.SetDefault("sessions.memcache.servers", []string{"localhost:11211"})
	v.SetDefault("sessions.memcache.max_idle_conns", 10)
	v.SetDefault("sessions.memcache.timeout", "100ms")

	v.SetDefault("events.provider", "memory")
	v.SetDefault("events.channel", "strapispec.sessions")
	v.SetDefault("events.redis.host", "localhost")
	v.SetDefault("events.redis.port", 6379)
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.nats.url", "nats://127.0.0.1:4222")

	v.SetDefault("logger.dev", false)
	v.SetDefault("logger.path", "")

	v.SetDefault("error_tracking.enabled", false)
	v.SetDefault("error_tracking.provider", "noop")
	v.SetDefault("error_tracking.dsn", "")
	v.SetDefault("error_tracking.environment", "development")
	v.SetDefault("error_tracking.release", "")
	v.SetDefault("error_tracking.debug", false)
	v.SetDefault("error_tracking.sample_rate", 1.0)
	v.SetDefault("error_tracking.traces_sample_rate", 0.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "strapispec")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("middleware.rate_limit_rps", 50.0)
	v.SetDefault("middleware.rate_limit_burst", 100)
	v.SetDefault("middleware.max_request_size", 1048576) // 1MB
	v.SetDefault("middleware.cors_origins", []string{"*"})
}
