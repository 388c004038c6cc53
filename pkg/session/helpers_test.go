package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitechdev/StrapiSpec/pkg/cache"
	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

func init() {
	logger.Init(true)
}

func blogTypes() []strapi.ContentType {
	return []strapi.ContentType{
		{
			UID:   "api::article.article",
			APIID: "article",
			Info:  strapi.Info{PluralName: "articles"},
			Attributes: map[string]strapi.Attribute{
				"title":    {Type: "string"},
				"slug":     {Type: "uid"},
				"views":    {Type: "integer"},
				"author":   {Type: "relation", Relation: "manyToOne", Target: "api::author.author"},
				"category": {Type: "relation", Relation: "manyToOne", Target: "api::category.category"},
			},
		},
		{
			UID:   "api::author.author",
			APIID: "author",
			Info:  strapi.Info{PluralName: "authors"},
			Attributes: map[string]strapi.Attribute{
				"name":     {Type: "string"},
				"email":    {Type: "email"},
				"articles": {Type: "relation", Relation: "oneToMany", Target: "api::article.article"},
				"avatar":   {Type: "relation", Relation: "oneToOne", Target: "api::image.image"},
			},
		},
		{
			UID:        "api::category.category",
			APIID:      "category",
			Info:       strapi.Info{PluralName: "categories"},
			Attributes: map[string]strapi.Attribute{"name": {Type: "string"}},
		},
		{
			UID:        "api::image.image",
			APIID:      "image",
			Info:       strapi.Info{PluralName: "images"},
			Attributes: map[string]strapi.Attribute{"url": {Type: "string"}},
		},
	}
}

// schemaSession is a session on articles with the blog schema loaded
func schemaSession(t *testing.T) *Session {
	t.Helper()
	s := New(NewID(), "http://strapi.local", "token")
	s.SetContentTypes(blogTypes())
	if err := s.SelectCollection("articles"); err != nil {
		t.Fatalf("SelectCollection: %v", err)
	}
	return s
}

// fakeStrapi answers Execute with resp/err. When gate is set every Execute
// waits for a value on it, so tests can interleave executions.
type fakeStrapi struct {
	mu        sync.Mutex
	types     []strapi.ContentType
	resp      *strapi.Response
	err       error
	gate      chan struct{}
	started   chan string
	queries   []string
	reachable bool
}

func (f *fakeStrapi) ListContentTypes(ctx context.Context) []strapi.ContentType {
	return f.types
}

func (f *fakeStrapi) Execute(ctx context.Context, collection, qs string) (*strapi.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, collection+"?"+qs)
	resp, err, gate, started := f.resp, f.err, f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- qs
	}
	if gate != nil {
		<-gate
	}
	return resp, err
}

func (f *fakeStrapi) TestConnection(ctx context.Context) bool {
	return f.reachable
}

func newTestManager(t *testing.T, fake *fakeStrapi) *Manager {
	t.Helper()
	store := NewStore(cache.NewMemoryProvider(&cache.Options{DefaultTTL: time.Hour}), time.Hour)
	m, err := NewManager(store, func(baseURL, apiKey string) Strapi { return fake },
		WithDefaultConnection("http://strapi.local/", "token"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}
