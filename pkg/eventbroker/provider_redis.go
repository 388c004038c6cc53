package eventbroker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
)

// RedisProvider fans events out over a Redis pub/sub channel. Every instance
// subscribed to the channel receives every event, the publisher included.
// Events are not persisted; a watcher that is offline simply reconnects and
// reads the current state.
type RedisProvider struct {
	client     *redis.Client
	channel    string
	ownsClient bool

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed atomic.Bool

	published atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
}

// RedisConfig configures the Redis provider
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// NewRedisProvider connects to Redis and pings it
func NewRedisProvider(cfg RedisConfig) (*RedisProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rp := NewRedisProviderWithClient(client, cfg.Channel)
	rp.ownsClient = true

	logger.Info("Redis event provider initialized (channel: %s)", rp.channel)
	return rp, nil
}

// NewRedisProviderWithClient publishes on an existing client. The client is
// not closed by Close.
func NewRedisProviderWithClient(client *redis.Client, channel string) *RedisProvider {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisProvider{client: client, channel: channel}
}

// Publish sends event to every subscribed instance
func (rp *RedisProvider) Publish(ctx context.Context, event *Event) error {
	if rp.closed.Load() {
		return ErrClosed
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := rp.client.Publish(ctx, rp.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	rp.published.Add(1)
	return nil
}

// Subscribe starts a listener that calls handler for every event. It returns
// once Redis confirmed the subscription.
func (rp *RedisProvider) Subscribe(ctx context.Context, handler Handler) error {
	if rp.closed.Load() {
		return ErrClosed
	}

	ps := rp.client.Subscribe(ctx, rp.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", rp.channel, err)
	}

	rp.mu.Lock()
	rp.subs = append(rp.subs, ps)
	rp.mu.Unlock()

	rp.wg.Add(1)
	go rp.listen(ps, handler)

	logger.Debug("Subscribed to Redis channel %s", rp.channel)
	return nil
}

// listen runs until the pub/sub connection is closed
func (rp *RedisProvider) listen(ps *redis.PubSub, handler Handler) {
	defer rp.wg.Done()

	for msg := range ps.Channel() {
		event, err := decode([]byte(msg.Payload))
		if err != nil {
			rp.dropped.Add(1)
			logger.Warn("Ignoring malformed event on %s: %v", rp.channel, err)
			continue
		}
		rp.received.Add(1)
		handler(event)
	}
}

// Name returns the provider name
func (rp *RedisProvider) Name() string {
	return "redis"
}

// Stats returns traffic counters
func (rp *RedisProvider) Stats() Stats {
	return Stats{
		Published: rp.published.Load(),
		Received:  rp.received.Load(),
		Dropped:   rp.dropped.Load(),
	}
}

// Close ends all subscriptions and waits for their listeners
func (rp *RedisProvider) Close() error {
	if rp.closed.Swap(true) {
		return nil
	}

	rp.mu.Lock()
	for _, ps := range rp.subs {
		if err := ps.Close(); err != nil {
			logger.Warn("Failed to close Redis subscription: %v", err)
		}
	}
	rp.subs = nil
	rp.mu.Unlock()

	rp.wg.Wait()

	if rp.ownsClient {
		if err := rp.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}
	logger.Info("Redis event provider closed")
	return nil
}
