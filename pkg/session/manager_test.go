package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/StrapiSpec/pkg/cache"
	"github.com/bitechdev/StrapiSpec/pkg/eventbroker"
	qb "github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

func createArticles(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Create(context.Background())
	require.NoError(t, err)
	s, err = m.Update(context.Background(), s.ID, func(s *Session) error {
		return s.SelectCollection("articles")
	})
	require.NoError(t, err)
	return s
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})

	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://strapi.local/", s.StrapiURL)
	assert.Equal(t, "token", s.APIKey)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = m.Update(ctx, s.ID, func(s *Session) error {
		if err := s.SelectCollection("articles"); err != nil {
			return err
		}
		return s.AddField("title")
	})
	require.NoError(t, err)

	got, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fields=title&pagination[page]=1&pagination[pageSize]=25", got.QueryString())

	require.NoError(t, m.Delete(ctx, s.ID))
	_, err = m.Get(ctx, s.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(m.Delete(ctx, s.ID), ErrSessionNotFound))
}

func TestManagerUnknownSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})

	_, err := m.Get(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = m.Get(ctx, NewID())
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = m.Update(ctx, NewID(), func(*Session) error { return nil })
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestManagerUpdateFailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	_, err := m.Update(ctx, s.ID, func(s *Session) error {
		s.Query.Fields = []string{"title"}
		return ErrUnknownField
	})
	assert.True(t, errors.Is(err, ErrUnknownField))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Query.Fields)
}

func TestManagerExecute(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{resp: &strapi.Response{
		Data: json.RawMessage(`{"id":1,"title":"Hello"}`),
		Meta: &strapi.Meta{Pagination: &strapi.PaginationMeta{Page: 1, PageSize: 25, PageCount: 1, Total: 1}},
	}}
	m := newTestManager(t, fake)
	s := createArticles(t, m)

	got, err := m.Execute(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Loading)
	assert.Empty(t, got.Error)
	assert.JSONEq(t, `[{"id":1,"title":"Hello"}]`, string(got.Data))
	require.NotNil(t, got.Meta)
	assert.Equal(t, 1, got.Meta.Pagination.Total)

	assert.Equal(t, []string{"articles?pagination[page]=1&pagination[pageSize]=25"}, fake.queries)
}

func TestManagerExecuteRecordsStrapiError(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{err: &strapi.APIError{Status: 400, Name: "ValidationError", Message: "Invalid key title"}}
	m := newTestManager(t, fake)
	s := createArticles(t, m)

	got, err := m.Execute(ctx, s.ID)
	require.NoError(t, err, "Strapi failures land on the session")
	assert.False(t, got.Loading)
	assert.Equal(t, "Invalid key title", got.Error)

	fake.err = nil
	fake.resp = &strapi.Response{Data: json.RawMessage(`[]`)}
	got, err = m.Execute(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error, "a new execution clears the previous error")
	assert.JSONEq(t, `[]`, string(got.Data))
}

func TestManagerExecuteWithoutCollection(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{}
	m := newTestManager(t, fake)

	s, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.Execute(ctx, s.ID)
	assert.True(t, errors.Is(err, ErrNoCollection))
	assert.Empty(t, fake.queries)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, NoCollectionMessage, got.Error)
	assert.False(t, got.Loading)
}

func TestManagerExecuteSupersededByNewerExecute(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{
		resp:    &strapi.Response{Data: json.RawMessage(`[{"id":2}]`)},
		gate:    make(chan struct{}),
		started: make(chan string, 2),
	}
	m := newTestManager(t, fake)
	s := createArticles(t, m)

	first := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, s.ID)
		first <- err
	}()
	<-fake.started

	second := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, s.ID)
		second <- err
	}()
	<-fake.started

	fake.gate <- struct{}{}
	fake.gate <- struct{}{}

	assert.True(t, errors.Is(<-first, ErrSuperseded))
	assert.NoError(t, <-second)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Loading)
	assert.JSONEq(t, `[{"id":2}]`, string(got.Data))
}

func TestManagerExecuteSupersededByReset(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{
		resp:    &strapi.Response{Data: json.RawMessage(`[{"id":1}]`)},
		gate:    make(chan struct{}),
		started: make(chan string, 1),
	}
	m := newTestManager(t, fake)
	s := createArticles(t, m)

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, s.ID)
		done <- err
	}()
	<-fake.started

	_, err := m.Update(ctx, s.ID, func(s *Session) error {
		s.Reset()
		return nil
	})
	require.NoError(t, err)

	fake.gate <- struct{}{}
	assert.True(t, errors.Is(<-done, ErrSuperseded))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Data, "the stale result is dropped")
	assert.False(t, got.Loading)
}

func TestManagerWatch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	updates, cancel := m.Watch(s.ID)
	defer cancel()

	_, err := m.Update(ctx, s.ID, func(s *Session) error {
		return s.AddSort(qb.SortOption{Field: "views", Order: qb.SortDesc})
	})
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, s.ID, u.SessionID)
		assert.Equal(t, "sort=views:desc&pagination[page]=1&pagination[pageSize]=25", u.Query)
		assert.Equal(t, "http://strapi.local/api/articles?"+u.Query, u.URL)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	// failed edits are not broadcast
	_, err = m.Update(ctx, s.ID, func(s *Session) error { return s.AddField("") })
	require.Error(t, err)
	assert.Len(t, updates, 0)
}

func TestManagerWatchSlowWatcherKeepsNewest(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	updates, _ := m.Watch(s.ID)
	const edits = watchBuffer + 3
	for i := 1; i <= edits; i++ {
		_, err := m.Update(ctx, s.ID, func(s *Session) error {
			s.SetPagination(qb.Pagination{Page: qb.IntPtr(i)})
			return nil
		})
		require.NoError(t, err)
	}
	assert.Len(t, updates, watchBuffer)

	latest, err := m.Get(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, s.ID))
	var received []Update
	for u := range updates {
		received = append(received, u)
	}
	require.Len(t, received, watchBuffer, "channel is closed once the session is gone")
	assert.Equal(t, "pagination[page]=4&pagination[pageSize]=25", received[0].Query, "oldest updates are dropped")
	assert.Equal(t, latest.QueryString(), received[len(received)-1].Query, "the newest update always arrives")
	assert.Equal(t, "pagination[page]=11&pagination[pageSize]=25", received[len(received)-1].Query)
}

func TestManagerWatchCancelAndClose(t *testing.T) {
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	updates, cancel := m.Watch(s.ID)
	cancel()
	cancel()
	_, ok := <-updates
	assert.False(t, ok)

	other, _ := m.Watch(s.ID)
	require.NoError(t, m.Close())
	_, ok = <-other
	assert.False(t, ok)

	late, _ := m.Watch(s.ID)
	_, ok = <-late
	assert.False(t, ok, "watching a closed manager yields a closed channel")
}

func TestManagerLoadContentTypes(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStrapi{types: blogTypes(), reachable: true}
	m := newTestManager(t, fake)

	s, err := m.Create(ctx)
	require.NoError(t, err)

	got, err := m.LoadContentTypes(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.ContentTypes, 4)

	_, err = m.Update(ctx, s.ID, func(s *Session) error { return s.SelectCollection("widgets") })
	assert.True(t, errors.Is(err, ErrUnknownCollection), "a loaded schema validates collections")

	ok, err := m.TestConnection(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	fake.reachable = false
	ok, err = m.TestConnection(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.TestConnection(ctx, NewID())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestManagerSharedEventsReachOtherInstances(t *testing.T) {
	ctx := context.Background()
	store := NewStore(cache.NewMemoryProvider(&cache.Options{DefaultTTL: time.Hour}), time.Hour)
	events := eventbroker.NewMemoryProvider()
	fake := &fakeStrapi{}
	clients := func(string, string) Strapi { return fake }

	a, err := NewManager(store, clients, WithEventProvider(events))
	require.NoError(t, err)
	b, err := NewManager(store, clients, WithEventProvider(events))
	require.NoError(t, err)

	s := createArticles(t, a)
	updates, cancel := b.Watch(s.ID)
	defer cancel()

	_, err = a.Update(ctx, s.ID, func(s *Session) error { return s.AddField("title") })
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, "fields=title&pagination[page]=1&pagination[pageSize]=25", u.Query)
	case <-time.After(time.Second):
		t.Fatal("edit on one instance did not reach a watcher on the other")
	}

	require.NoError(t, a.Delete(ctx, s.ID))
	_, ok := <-updates
	assert.False(t, ok, "deleting on one instance disconnects watchers on the other")

	require.NoError(t, a.Close())
}

func TestManagerPublishFailureStillServesLocalWatchers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	updates, cancel := m.Watch(s.ID)
	defer cancel()

	require.NoError(t, m.events.Close())
	_, err := m.Update(ctx, s.ID, func(s *Session) error { return s.AddField("title") })
	require.NoError(t, err)

	require.Len(t, updates, 1)
	assert.Equal(t, "fields=title&pagination[page]=1&pagination[pageSize]=25", (<-updates).Query)
}

func lockCount(m *Manager) int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.locks)
}

func TestManagerReleasesSessionLocks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakeStrapi{})
	s := createArticles(t, m)

	for i := 0; i < 5; i++ {
		_, err := m.Update(ctx, NewID(), func(*Session) error { return nil })
		require.True(t, errors.Is(err, ErrSessionNotFound))
	}
	assert.Equal(t, 0, lockCount(m), "unknown sessions leave no lock behind")

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = m.Update(ctx, s.ID, func(s *Session) error { return s.AddField("title") })
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 0, lockCount(m), "locks are dropped once nobody holds or waits for them")

	require.NoError(t, m.Delete(ctx, s.ID))
	assert.Equal(t, 0, lockCount(m))
}

// cancelAwareProvider fails like a network backend once the context is done
type cancelAwareProvider struct {
	cache.Provider
}

func (p cancelAwareProvider) Get(ctx context.Context, key string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	return p.Provider.Get(ctx, key)
}

func (p cancelAwareProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Provider.Set(ctx, key, value, ttl)
}

func TestManagerExecuteFinishesAfterCallerLeaves(t *testing.T) {
	fake := &fakeStrapi{
		resp:    &strapi.Response{Data: json.RawMessage(`[{"id":1}]`)},
		gate:    make(chan struct{}),
		started: make(chan string, 1),
	}
	store := NewStore(cancelAwareProvider{cache.NewMemoryProvider(&cache.Options{DefaultTTL: time.Hour})}, time.Hour)
	m, err := NewManager(store, func(string, string) Strapi { return fake })
	require.NoError(t, err)
	defer m.Close()

	s := createArticles(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, s.ID)
		result <- err
	}()
	<-fake.started
	cancel()
	fake.gate <- struct{}{}
	require.NoError(t, <-result)

	got, err := m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, got.Loading, "a departed caller must not leave the session loading")
	assert.JSONEq(t, `[{"id":1}]`, string(got.Data))
}
