package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bitechdev/StrapiSpec/pkg/cache"
	"github.com/bitechdev/StrapiSpec/pkg/metrics"
)

const sessionKeyPrefix = "session:"

// Store persists sessions in a cache provider. Every save refreshes the TTL.
type Store struct {
	cache    *cache.Cache
	provider string
	ttl      time.Duration
}

// NewStore wraps provider. A zero ttl uses the provider's default.
func NewStore(provider cache.Provider, ttl time.Duration) *Store {
	return &Store{
		cache:    cache.NewCache(provider),
		provider: provider.Name(),
		ttl:      ttl,
	}
}

// NewID returns a fresh random session id
func NewID() string {
	return uuid.NewString()
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Get loads the session with id
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		metrics.GetProvider().RecordSessionLookup(st.provider, false)
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	var s Session
	err := st.cache.Get(ctx, sessionKey(id), &s)
	metrics.GetProvider().RecordSessionLookup(st.provider, err == nil)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &s, nil
}

// Save writes s and stamps its update time
func (st *Store) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	if err := st.cache.Set(ctx, sessionKey(s.ID), s, st.ttl); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes the session with id
func (st *Store) Delete(ctx context.Context, id string) error {
	if !st.cache.Exists(ctx, sessionKey(id)) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st.cache.Delete(ctx, sessionKey(id))
}

// Close releases the underlying provider
func (st *Store) Close() error {
	return st.cache.Close()
}
