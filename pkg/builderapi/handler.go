package builderapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bitechdev/StrapiSpec/pkg/metrics"
	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/session"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

// Handler serves the builder API on top of a session manager
type Handler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithCheckOrigin sets the origin check applied to websocket upgrades
func WithCheckOrigin(check func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHandler creates a handler for the sessions of manager
func NewHandler(manager *session.Manager, opts ...HandlerOption) *Handler {
	h := &Handler{
		sessions: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// sessionView is the client-facing form of a session. The API key never
// leaves the server.
type sessionView struct {
	ID                 string               `json:"id"`
	StrapiURL          string               `json:"strapi_url"`
	HasAPIKey          bool                 `json:"has_api_key"`
	SelectedCollection string               `json:"selected_collection"`
	ContentTypes       []strapi.ContentType `json:"content_types"`
	Query              querybuilder.Query   `json:"query"`
	QueryString        string               `json:"query_string"`
	URL                string               `json:"url"`
	Data               json.RawMessage      `json:"data,omitempty"`
	Meta               *strapi.Meta         `json:"meta,omitempty"`
	Loading            bool                 `json:"loading"`
	Error              string               `json:"error,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func newSessionView(s *session.Session) sessionView {
	u := session.NewUpdate(s)
	return sessionView{
		ID:                 s.ID,
		StrapiURL:          s.StrapiURL,
		HasAPIKey:          s.APIKey != "",
		SelectedCollection: s.SelectedCollection,
		ContentTypes:       s.ContentTypes,
		Query:              s.Query,
		QueryString:        u.Query,
		URL:                u.URL,
		Data:               s.Data,
		Meta:               s.Meta,
		Loading:            s.Loading,
		Error:              s.Error,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// mutate applies fn to the session named in the route and answers with the
// updated session
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	s, err := h.sessions.Update(r.Context(), mux.Vars(r)["id"], fn)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionView(s))
}

// mutateWithBody decodes the request body into a fresh T before mutating
func mutateWithBody[T any](h *Handler, w http.ResponseWriter, r *http.Request, fn func(*session.Session, T) error) {
	var body T
	if err := decodeBody(r, &body); err != nil {
		handleError(w, r, err)
		return
	}
	h.mutate(w, r, func(s *session.Session) error { return fn(s, body) })
}

type compileResponse struct {
	Query string `json:"query"`
}

// Compile turns a query posted in the body into its query string. No session
// is involved.
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	var q querybuilder.Query
	if err := decodeBody(r, &q); err != nil {
		handleError(w, r, err)
		return
	}
	qs := querybuilder.BuildQueryString(q)
	metrics.GetProvider().RecordQueryCompiled(len(qs))
	writeData(w, http.StatusOK, compileResponse{Query: qs})
}

type operatorInfo struct {
	Operator   querybuilder.Operator `json:"operator"`
	Label      string                `json:"label"`
	NeedsValue bool                  `json:"needs_value"`
	List       bool                  `json:"list"`
}

// ListOperators lists the filter operators offered by the editor
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	ops := querybuilder.Operators()
	out := make([]operatorInfo, len(ops))
	for i, op := range ops {
		out[i] = operatorInfo{Operator: op, Label: op.Label(), NeedsValue: op.NeedsValue(), List: op.IsList()}
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, newSessionView(s))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionView(s))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

type connectionRequest struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

// SetConnection points the session at another Strapi server. The schema of
// the previous server is dropped.
func (h *Handler) SetConnection(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req connectionRequest) error {
		if req.URL == "" {
			return fmt.Errorf("%w: url is required", errInvalidRequest)
		}
		s.SetConnection(req.URL, req.APIKey)
		s.SetContentTypes(nil)
		return nil
	})
}

// LoadContentTypes discovers the schema of the session's Strapi server and
// returns it. An empty list means the session stays in manual mode.
func (h *Handler) LoadContentTypes(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.LoadContentTypes(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.ContentTypes)
}

type connectionStatus struct {
	Connected bool `json:"connected"`
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	ok, err := h.sessions.TestConnection(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, connectionStatus{Connected: ok})
}

type schemaResponse struct {
	Collection string   `json:"collection"`
	Path       string   `json:"path"`
	Manual     bool     `json:"manual"`
	Fields     []string `json:"fields"`
	Relations  []string `json:"relations"`
}

// DescribeSchema lists the scalar fields and the relations that may still be
// populated at ?path= (dotted, empty for the collection itself)
func (h *Handler) DescribeSchema(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	if s.SelectedCollection == "" {
		handleError(w, r, session.ErrNoCollection)
		return
	}

	pathParam := r.URL.Query().Get("path")
	resp := schemaResponse{
		Collection: s.SelectedCollection,
		Path:       pathParam,
		Fields:     []string{},
		Relations:  []string{},
	}
	if len(s.ContentTypes) == 0 {
		resp.Manual = true
		writeData(w, http.StatusOK, resp)
		return
	}

	path := session.ParsePath(pathParam)
	ct, err := strapi.ResolvePath(s.ContentTypes, s.SelectedCollection, path)
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", session.ErrInvalidPath, err))
		return
	}
	relations, err := strapi.RelationCandidates(s.ContentTypes, s.SelectedCollection, path)
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", session.ErrInvalidPath, err))
		return
	}
	resp.Fields = strapi.ScalarFields(ct)
	resp.Relations = relations
	writeData(w, http.StatusOK, resp)
}

type collectionRequest struct {
	Collection string `json:"collection"`
}

func (h *Handler) SelectCollection(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req collectionRequest) error {
		return s.SelectCollection(req.Collection)
	})
}

type fieldRequest struct {
	Field string `json:"field"`
}

func (h *Handler) AddField(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req fieldRequest) error {
		return s.AddField(req.Field)
	})
}

type fieldsRequest struct {
	Fields []string `json:"fields"`
}

func (h *Handler) SetFields(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req fieldsRequest) error {
		s.SetFields(req.Fields)
		return nil
	})
}

func (h *Handler) RemoveField(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	h.mutate(w, r, func(s *session.Session) error {
		s.RemoveField(field)
		return nil
	})
}

// populateRequest addresses a node of the populate tree. Path is dotted
// ("author.avatar"), empty for the top level.
type populateRequest struct {
	Path  string `json:"path"`
	Field string `json:"field"`
}

func (h *Handler) AddPopulate(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req populateRequest) error {
		return s.AddPopulate(session.ParsePath(req.Path), req.Field)
	})
}

func (h *Handler) RemovePopulate(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req populateRequest) error {
		return s.RemovePopulate(session.ParsePath(req.Path))
	})
}

func (h *Handler) SetPopulate(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, tree []querybuilder.PopulateField) error {
		return s.SetPopulate(tree)
	})
}

func (h *Handler) AddPopulateField(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req populateRequest) error {
		return s.AddPopulateField(session.ParsePath(req.Path), req.Field)
	})
}

func (h *Handler) RemovePopulateField(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req populateRequest) error {
		return s.RemovePopulateField(session.ParsePath(req.Path), req.Field)
	})
}

func (h *Handler) AddSort(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, opt querybuilder.SortOption) error {
		return s.AddSort(opt)
	})
}

func (h *Handler) SetSort(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, opts []querybuilder.SortOption) error {
		return s.SetSort(opts)
	})
}

func (h *Handler) RemoveSort(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	h.mutate(w, r, func(s *session.Session) error {
		s.RemoveSort(field)
		return nil
	})
}

// conditionRequest carries the value as typed in the editor; it is coerced
// before it is stored
type conditionRequest struct {
	Field    string                `json:"field"`
	Operator querybuilder.Operator `json:"operator"`
	Value    string                `json:"value"`
}

func (h *Handler) AddCondition(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req conditionRequest) error {
		return s.AddCondition(req.Field, req.Operator, req.Value)
	})
}

func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: bad condition index", errInvalidRequest))
		return
	}
	h.mutate(w, r, func(s *session.Session) error {
		return s.RemoveCondition(index)
	})
}

// SetFilters replaces the filter tree with the one in the body. A null body
// clears the filters.
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, r, err)
		return
	}
	root, err := querybuilder.DecodeFilterNode(raw)
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: %v", session.ErrInvalidFilter, err))
		return
	}
	h.mutate(w, r, func(s *session.Session) error {
		return s.SetFilters(root)
	})
}

// patchRequest edits one value inside the filter tree. A missing value
// deletes the path.
type patchRequest struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

func (h *Handler) PatchFilters(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, req patchRequest) error {
		return s.PatchFilter(req.Path, req.Value)
	})
}

func (h *Handler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.ClearFilters()
		return nil
	})
}

// SetPagination merges the defined values of the body into the pagination
func (h *Handler) SetPagination(w http.ResponseWriter, r *http.Request) {
	mutateWithBody(h, w, r, func(s *session.Session, p querybuilder.Pagination) error {
		s.SetPagination(p)
		return nil
	})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(s *session.Session) error {
		s.Reset()
		return nil
	})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	p := s.Preview()
	metrics.GetProvider().RecordQueryCompiled(len(p.Query))
	writeData(w, http.StatusOK, p)
}

// Execute runs the session's query against Strapi. Strapi failures are part
// of the returned state; only a superseded or impossible execution is an
// error response.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Execute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionView(s))
}
