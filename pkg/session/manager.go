package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/StrapiSpec/pkg/eventbroker"
	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/tracing"
)

// watchBuffer is how many updates a slow watcher may lag behind. Past that
// the oldest pending update is dropped, so the newest one always arrives.
const watchBuffer = 8

const subscribeTimeout = 10 * time.Second

// Update is pushed to watchers after every change of a session
type Update struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	URL       string `json:"url"`
}

// Manager serializes access to sessions, persists them in a Store and fans
// changes out to watchers. Changes travel through an event provider so that
// watchers connected to other instances sharing the store see them too.
type Manager struct {
	store         *Store
	clients       ClientFactory
	events        eventbroker.Provider
	defaultURL    string
	defaultAPIKey string

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	watchMu  sync.Mutex
	watchers map[string]map[chan Update]struct{}
	closed   bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithDefaultConnection sets the Strapi connection new sessions start with
func WithDefaultConnection(baseURL, apiKey string) ManagerOption {
	return func(m *Manager) {
		m.defaultURL = baseURL
		m.defaultAPIKey = apiKey
	}
}

// WithEventProvider publishes session changes through p instead of the
// default in-process provider
func WithEventProvider(p eventbroker.Provider) ManagerOption {
	return func(m *Manager) {
		m.events = p
	}
}

// NewManager creates a manager on top of store. clients builds the Strapi
// client used for schema discovery and execution. The manager subscribes to
// its event provider before returning.
func NewManager(store *Store, clients ClientFactory, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:    store,
		clients:  clients,
		locks:    make(map[string]*sessionLock),
		watchers: make(map[string]map[chan Update]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = eventbroker.NewMemoryProvider()
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	if err := m.events.Subscribe(ctx, m.deliver); err != nil {
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	return m, nil
}

// sessionLock is shared by everyone currently editing one session. It is
// dropped from the map once the last holder or waiter is gone.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (m *Manager) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}

// Create starts a new session with the default connection
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := New(NewID(), m.defaultURL, m.defaultAPIKey)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	logger.Debug("Created session %s", s.ID)
	return s.Clone(), nil
}

// Get returns a snapshot of the session
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Delete removes the session and disconnects its watchers on every instance
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.publish(ctx, eventbroker.NewEvent(eventbroker.EventSessionDeleted, id))

	logger.Debug("Deleted session %s", id)
	return nil
}

// Update loads the session, applies fn and saves the result. Nothing is saved
// when fn fails. Watchers are notified on success, in the order the changes
// were saved.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	m.notify(ctx, s)
	return s.Clone(), nil
}

func (m *Manager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) client(s *Session) Strapi {
	return m.clients(s.StrapiURL, s.APIKey)
}

// LoadContentTypes fetches the schema from Strapi and stores it on the session.
// An unreachable schema endpoint leaves the session in manual mode.
func (m *Manager) LoadContentTypes(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cts := m.client(s).ListContentTypes(ctx)

	return m.Update(ctx, id, func(s *Session) error {
		s.SetContentTypes(cts)
		return nil
	})
}

// TestConnection checks whether the session's Strapi server answers
func (m *Manager) TestConnection(ctx context.Context, id string) (bool, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return m.client(s).TestConnection(ctx), nil
}

// Execute runs the session's compiled query. A call that is overtaken by a
// newer Execute (or a Reset) on the same session returns ErrSuperseded and its
// result is discarded. Strapi failures are recorded on the session, not
// returned.
func (m *Manager) Execute(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "session.execute", attribute.String("session.id", id))
	defer span.End()

	var (
		generation uint64
		collection string
		qs         string
		client     Strapi
	)
	_, err := m.Update(ctx, id, func(s *Session) error {
		g, err := s.BeginExecute()
		if err != nil {
			return err
		}
		generation = g
		collection = s.SelectedCollection
		qs = s.QueryString()
		client = m.client(s)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoCollection) {
			m.recordNoCollection(ctx, id)
		}
		tracing.RecordError(ctx, err)
		return nil, err
	}

	tracing.SetAttributes(ctx,
		attribute.String("strapi.collection", collection),
		attribute.Int("strapi.query_length", len(qs)),
	)

	resp, execErr := client.Execute(ctx, collection, qs)
	if execErr != nil {
		logger.Debug("Query on %s failed for session %s: %v", collection, id, execErr)
	}

	// the outcome is stored even when the caller went away mid-query, so the
	// session does not stay loading
	finished, err := m.Update(context.WithoutCancel(ctx), id, func(s *Session) error {
		return s.FinishExecute(generation, resp, execErr)
	})
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			logger.Debug("Discarding superseded result for session %s (generation %d)", id, generation)
		}
		return nil, err
	}
	return finished, nil
}

// recordNoCollection surfaces the missing collection on the session itself
func (m *Manager) recordNoCollection(ctx context.Context, id string) {
	_, _ = m.Update(ctx, id, func(s *Session) error {
		s.Error = NoCollectionMessage
		return nil
	})
}

// Watch subscribes to updates of session id. The channel is closed when the
// session is deleted, the manager closes, or cancel is called.
func (m *Manager) Watch(id string) (<-chan Update, func()) {
	ch := make(chan Update, watchBuffer)

	m.watchMu.Lock()
	if m.closed {
		m.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[chan Update]struct{})
	}
	m.watchers[id][ch] = struct{}{}
	m.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.watchMu.Lock()
			defer m.watchMu.Unlock()
			if _, ok := m.watchers[id][ch]; ok {
				delete(m.watchers[id], ch)
				if len(m.watchers[id]) == 0 {
					delete(m.watchers, id)
				}
				close(ch)
			}
		})
	}
	return ch, cancel
}

// NewUpdate describes the current compiled query of s
func NewUpdate(s *Session) Update {
	qs := s.QueryString()
	return Update{
		SessionID: s.ID,
		Query:     qs,
		URL:       querybuilder.BuildURL(s.StrapiURL, s.SelectedCollection, qs),
	}
}

// notify publishes the new state of s. When the provider is unavailable the
// local watchers are still served.
func (m *Manager) notify(ctx context.Context, s *Session) {
	u := NewUpdate(s)
	event := eventbroker.NewEvent(eventbroker.EventSessionChanged, s.ID)
	event.Query = u.Query
	event.URL = u.URL
	m.publish(ctx, event)
}

func (m *Manager) publish(ctx context.Context, event *eventbroker.Event) {
	if err := m.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Failed to publish %s for session %s: %v", event.Type, event.SessionID, err)
		m.deliver(event)
	}
}

// deliver hands an event received from the provider to local watchers
func (m *Manager) deliver(event *eventbroker.Event) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	subs := m.watchers[event.SessionID]
	if len(subs) == 0 {
		return
	}

	switch event.Type {
	case eventbroker.EventSessionChanged:
		u := Update{SessionID: event.SessionID, Query: event.Query, URL: event.URL}
		for ch := range subs {
			offer(ch, u)
		}
	case eventbroker.EventSessionDeleted:
		for ch := range subs {
			close(ch)
		}
		delete(m.watchers, event.SessionID)
	}
}

// offer queues u on ch, discarding the oldest pending update when ch is full.
// Only deliver sends on watcher channels, so one discard always makes room.
func offer(ch chan Update, u Update) {
	select {
	case ch <- u:
		return
	default:
	}

	select {
	case <-ch:
		logger.Debug("Dropping oldest pending update for slow watcher of session %s", u.SessionID)
	default:
	}

	select {
	case ch <- u:
	default:
	}
}

// Close disconnects every watcher and closes the event provider and the store
func (m *Manager) Close() error {
	m.watchMu.Lock()
	if !m.closed {
		m.closed = true
		for id, subs := range m.watchers {
			for ch := range subs {
				close(ch)
			}
			delete(m.watchers, id)
		}
	}
	m.watchMu.Unlock()

	if err := m.events.Close(); err != nil {
		logger.Warn("Failed to close event provider: %v", err)
	}
	return m.store.Close()
}
