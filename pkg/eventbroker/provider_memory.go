package eventbroker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by providers that were already closed
var ErrClosed = errors.New("event provider closed")

// MemoryProvider delivers events to the handlers of this process only.
// Publish calls every handler before it returns.
type MemoryProvider struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool

	published atomic.Int64
}

// NewMemoryProvider creates an in-process provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// Publish hands event to every handler
func (mp *MemoryProvider) Publish(ctx context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	mp.mu.RLock()
	if mp.closed {
		mp.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]Handler(nil), mp.handlers...)
	mp.mu.RUnlock()

	mp.published.Add(1)
	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers handler
func (mp *MemoryProvider) Subscribe(ctx context.Context, handler Handler) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.closed {
		return ErrClosed
	}
	mp.handlers = append(mp.handlers, handler)
	return nil
}

// Name returns the provider name
func (mp *MemoryProvider) Name() string {
	return "memory"
}

// Stats returns the number of published events
func (mp *MemoryProvider) Stats() Stats {
	n := mp.published.Load()
	return Stats{Published: n, Received: n}
}

// Close drops all handlers
func (mp *MemoryProvider) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.closed = true
	mp.handlers = nil
	return nil
}
