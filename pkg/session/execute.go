package session

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

// Strapi is the part of strapi.Client a session needs
type Strapi interface {
	ListContentTypes(ctx context.Context) []strapi.ContentType
	Execute(ctx context.Context, collection, queryString string) (*strapi.Response, error)
	TestConnection(ctx context.Context) bool
}

// ClientFactory builds a Strapi client for a session's connection
type ClientFactory func(baseURL, apiKey string) Strapi

// NoCollectionMessage is shown when execution is requested without a collection
const NoCollectionMessage = "Please select a collection first"

// BeginExecute marks the session as loading and returns the generation the
// result must match. Any execution still pending is superseded.
func (s *Session) BeginExecute() (uint64, error) {
	if s.SelectedCollection == "" {
		return 0, ErrNoCollection
	}
	s.Generation++
	s.Loading = true
	s.Error = ""
	return s.Generation, nil
}

// FinishExecute applies the outcome of the execution started at generation.
// Outcomes of superseded executions are dropped with ErrSuperseded.
func (s *Session) FinishExecute(generation uint64, resp *strapi.Response, execErr error) error {
	if generation != s.Generation || !s.Loading {
		return ErrSuperseded
	}
	s.Loading = false

	if execErr != nil {
		s.Error = execErr.Error()
		return nil
	}

	s.Error = ""
	s.Data = asArray(resp.Data)
	s.Meta = resp.Meta
	return nil
}

// asArray wraps a single record (single types, findOne) in an array
func asArray(data json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("[]")
	}
	if trimmed[0] == '[' {
		return trimmed
	}
	out := make([]byte, 0, len(trimmed)+2)
	out = append(out, '[')
	out = append(out, trimmed...)
	out = append(out, ']')
	return out
}
