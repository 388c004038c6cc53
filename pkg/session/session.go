// Package session holds the state of one query-building session: the Strapi
// connection, the discovered schema, the query being edited and the result of
// its last execution. Sessions are plain values; Manager adds persistence,
// per-session locking and change notification.
package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

// Session is the editable state behind one query builder
type Session struct {
	ID                 string               `json:"id"`
	StrapiURL          string               `json:"strapi_url"`
	APIKey             string               `json:"api_key,omitempty"`
	SelectedCollection string               `json:"selected_collection,omitempty"`
	ContentTypes       []strapi.ContentType `json:"content_types"`
	Query              querybuilder.Query   `json:"query"`
	Data               json.RawMessage      `json:"data,omitempty"`
	Meta               *strapi.Meta         `json:"meta,omitempty"`
	Loading            bool                 `json:"loading"`
	Error              string               `json:"error,omitempty"`
	Generation         uint64               `json:"generation"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// New returns a session with the default pagination (page 1, 25 per page)
func New(id, strapiURL, apiKey string) *Session {
	now := time.Now().UTC()
	p := querybuilder.DefaultPagination()
	return &Session{
		ID:           id,
		StrapiURL:    strapiURL,
		APIKey:       apiKey,
		ContentTypes: []strapi.ContentType{},
		Query:        querybuilder.Query{Pagination: &p},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetConnection changes the Strapi server the session talks to
func (s *Session) SetConnection(strapiURL, apiKey string) {
	s.StrapiURL = strapiURL
	s.APIKey = apiKey
}

// SetContentTypes replaces the discovered schema
func (s *Session) SetContentTypes(cts []strapi.ContentType) {
	if cts == nil {
		cts = []strapi.ContentType{}
	}
	s.ContentTypes = cts
}

// hasSchema reports whether content types were discovered. Without them the
// session runs in manual mode and names are not checked.
func (s *Session) hasSchema() bool {
	return len(s.ContentTypes) > 0
}

// currentType returns the schema of the selected collection, nil in manual mode
func (s *Session) currentType() (*strapi.ContentType, error) {
	if s.SelectedCollection == "" {
		return nil, ErrNoCollection
	}
	if !s.hasSchema() {
		return nil, nil
	}
	ct, ok := strapi.FindContentType(s.ContentTypes, s.SelectedCollection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, s.SelectedCollection)
	}
	return ct, nil
}

// SelectCollection switches the target collection. Fields, populate, sort and
// filters are cleared so nothing leaks across collections; pagination is kept.
func (s *Session) SelectCollection(collection string) error {
	if collection != "" && s.hasSchema() {
		if _, ok := strapi.FindContentType(s.ContentTypes, collection); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
		}
	}
	s.SelectedCollection = collection
	s.Query.Fields = nil
	s.Query.Populate = nil
	s.Query.Sort = nil
	s.Query.Filters = nil
	return nil
}

// AddField appends field to the projection unless it is already there
func (s *Session) AddField(field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrUnknownField)
	}
	ct, err := s.currentType()
	if err != nil {
		return err
	}
	if ct != nil {
		if attr, ok := ct.Attributes[field]; !ok || attr.IsRelation() {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	if !slices.Contains(s.Query.Fields, field) {
		s.Query.Fields = append(s.Query.Fields, field)
	}
	return nil
}

// RemoveField drops field from the projection
func (s *Session) RemoveField(field string) {
	s.Query.Fields = slices.DeleteFunc(s.Query.Fields, func(f string) bool { return f == field })
}

// SetFields replaces the projection, dropping repeated names
func (s *Session) SetFields(fields []string) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	s.Query.Fields = out
}

// AddSort adds a sort entry. An entry for the same field is replaced in place.
func (s *Session) AddSort(opt querybuilder.SortOption) error {
	if !opt.Order.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSortOrder, opt.Order)
	}
	if opt.Field == "" {
		return fmt.Errorf("%w: empty sort field", ErrUnknownField)
	}
	s.Query.Sort = upsertSort(s.Query.Sort, opt)
	return nil
}

// SetSort replaces the sort list. Later entries for a field replace earlier
// ones at the earlier position.
func (s *Session) SetSort(opts []querybuilder.SortOption) error {
	out := make([]querybuilder.SortOption, 0, len(opts))
	for _, opt := range opts {
		if !opt.Order.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidSortOrder, opt.Order)
		}
		out = upsertSort(out, opt)
	}
	s.Query.Sort = out
	return nil
}

func upsertSort(list []querybuilder.SortOption, opt querybuilder.SortOption) []querybuilder.SortOption {
	for i := range list {
		if list[i].Field == opt.Field {
			list[i] = opt
			return list
		}
	}
	return append(list, opt)
}

// RemoveSort drops the entry for field
func (s *Session) RemoveSort(field string) {
	s.Query.Sort = slices.DeleteFunc(s.Query.Sort, func(o querybuilder.SortOption) bool { return o.Field == field })
}

// SetPagination merges the defined values of p into the current pagination
func (s *Session) SetPagination(p querybuilder.Pagination) {
	current := querybuilder.Pagination{}
	if s.Query.Pagination != nil {
		current = *s.Query.Pagination
	}
	merged := current.Merge(p)
	s.Query.Pagination = &merged
}

// Reset clears the query and the last result. Pagination returns to page 1,
// 25 per page. A pending execution is discarded.
func (s *Session) Reset() {
	p := querybuilder.DefaultPagination()
	s.Query = querybuilder.Query{Pagination: &p}
	s.Data = nil
	s.Meta = nil
	s.Error = ""
	s.Loading = false
	s.Generation++
}

// QueryString compiles the current query
func (s *Session) QueryString() string {
	return querybuilder.BuildQueryString(s.Query)
}

// Preview is the compiled query with its full URL and summary
type Preview struct {
	Query   string               `json:"query"`
	URL     string               `json:"url"`
	Summary querybuilder.Summary `json:"summary"`
}

// Preview compiles the query and describes it
func (s *Session) Preview() Preview {
	qs := s.QueryString()
	return Preview{
		Query:   qs,
		URL:     querybuilder.BuildURL(s.StrapiURL, s.SelectedCollection, qs),
		Summary: querybuilder.Summarize(s.SelectedCollection, s.Query),
	}
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *Session) Clone() *Session {
	out := *s
	out.ContentTypes = slices.Clone(s.ContentTypes)
	out.Query = s.Query.Clone()
	out.Data = slices.Clone(s.Data)
	if s.Meta != nil {
		m := *s.Meta
		if s.Meta.Pagination != nil {
			p := *s.Meta.Pagination
			m.Pagination = &p
		}
		out.Meta = &m
	}
	return &out
}
