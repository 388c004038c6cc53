package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler receives every event published on the channel. Handlers must not block.
type Handler func(*Event)

// Provider fans session events out to every subscribed instance.
// Implementations: MemoryProvider, RedisProvider, NATSProvider
type Provider interface {
	// Publish delivers event to all subscribers, including this instance
	Publish(ctx context.Context, event *Event) error

	// Subscribe registers handler for all events. It returns once the
	// subscription is active.
	Subscribe(ctx context.Context, handler Handler) error

	// Name returns the provider name
	Name() string

	// Close stops delivery and releases resources
	Close() error
}

// Stats counts the traffic of a provider
type Stats struct {
	Published int64 `json:"published"`
	Received  int64 `json:"received"`
	Dropped   int64 `json:"dropped"`
}

func encode(event *Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
