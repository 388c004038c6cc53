package builderapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/session"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
)

// errInvalidRequest marks bodies and parameters that could not be decoded
var errInvalidRequest = errors.New("invalid request")

// envelope is the body of every API response
type envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorMapping ties a sentinel error to its status code and error code
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{session.ErrNoCollection, http.StatusBadRequest, "no_collection"},
	{session.ErrUnknownCollection, http.StatusBadRequest, "unknown_collection"},
	{session.ErrUnknownField, http.StatusBadRequest, "unknown_field"},
	{session.ErrInvalidPath, http.StatusBadRequest, "invalid_path"},
	{session.ErrDuplicateRelation, http.StatusBadRequest, "duplicate_relation"},
	{session.ErrCircularRelation, http.StatusBadRequest, "circular_relation"},
	{session.ErrInvalidOperator, http.StatusBadRequest, "invalid_operator"},
	{session.ErrMissingValue, http.StatusBadRequest, "missing_value"},
	{session.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter"},
	{session.ErrIndexOutOfRange, http.StatusBadRequest, "index_out_of_range"},
	{session.ErrInvalidSortOrder, http.StatusBadRequest, "invalid_sort_order"},
	{session.ErrSuperseded, http.StatusConflict, "superseded"},
	{errInvalidRequest, http.StatusBadRequest, "invalid_request"},
}

// classify maps err to the status and code reported to the client
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, "request_too_large"
	}

	var apiErr *strapi.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, "strapi_error"
	}

	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &errorDetail{Code: code, Message: message}})
}

// handleError reports err in the envelope. Unexpected failures are logged and
// forwarded to error tracking.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		logger.CaptureError(r.Context(), err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	writeError(w, status, code, err.Error())
}

// decodeBody decodes the JSON request body into v
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errInvalidRequest)
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}
