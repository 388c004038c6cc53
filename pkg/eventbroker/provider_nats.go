package eventbroker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
)

// NATSProvider fans events out over a core NATS subject. Delivery is at most
// once, which is all a live preview needs.
type NATSProvider struct {
	nc      *nats.Conn
	subject string

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed atomic.Bool

	published atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
}

// NATSConfig configures the NATS provider
type NATSConfig struct {
	URL        string
	Subject    string
	InstanceID string
}

// NewNATSProvider connects to the NATS server at cfg.URL
func NewNATSProvider(cfg NATSConfig) (*NATSProvider, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultChannel
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("strapispec-"+cfg.InstanceID),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS event provider initialized (subject: %s, url: %s)", cfg.Subject, cfg.URL)
	return &NATSProvider{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends event on the subject
func (np *NATSProvider) Publish(ctx context.Context, event *Event) error {
	if np.closed.Load() {
		return ErrClosed
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := np.nc.Publish(np.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	np.published.Add(1)
	return nil
}

// Subscribe calls handler for every event on the subject. Messages of one
// subscription are handled in order.
func (np *NATSProvider) Subscribe(ctx context.Context, handler Handler) error {
	if np.closed.Load() {
		return ErrClosed
	}

	sub, err := np.nc.Subscribe(np.subject, func(msg *nats.Msg) {
		event, err := decode(msg.Data)
		if err != nil {
			np.dropped.Add(1)
			logger.Warn("Ignoring malformed event on %s: %v", np.subject, err)
			return
		}
		np.received.Add(1)
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", np.subject, err)
	}
	if err := np.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("failed to confirm subscription to %s: %w", np.subject, err)
	}

	np.mu.Lock()
	np.subs = append(np.subs, sub)
	np.mu.Unlock()

	logger.Debug("Subscribed to NATS subject %s", np.subject)
	return nil
}

// Name returns the provider name
func (np *NATSProvider) Name() string {
	return "nats"
}

// Stats returns traffic counters
func (np *NATSProvider) Stats() Stats {
	return Stats{
		Published: np.published.Load(),
		Received:  np.received.Load(),
		Dropped:   np.dropped.Load(),
	}
}

// Close unsubscribes and closes the connection
func (np *NATSProvider) Close() error {
	if np.closed.Swap(true) {
		return nil
	}

	np.mu.Lock()
	for _, sub := range np.subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("Failed to unsubscribe from %s: %v", np.subject, err)
		}
	}
	np.subs = nil
	np.mu.Unlock()

	np.nc.Close()
	logger.Info("NATS event provider closed")
	return nil
}
