// Package builderapi exposes query-building sessions over HTTP.
//
// Every response uses the envelope {success, data, error{code, message}}.
// Session edits are applied through session.Manager so concurrent requests on
// the same session are serialized and watchers see every change.
package builderapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupMuxRoutes registers the builder API on muxRouter
func SetupMuxRoutes(muxRouter *mux.Router, handler *Handler) {
	api := muxRouter.PathPrefix("/api").Subrouter()

	api.HandleFunc("/compile", handler.Compile).Methods(http.MethodPost)
	api.HandleFunc("/operators", handler.ListOperators).Methods(http.MethodGet)

	api.HandleFunc("/sessions", handler.CreateSession).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}", handler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", handler.DeleteSession).Methods(http.MethodDelete)

	s := api.PathPrefix("/sessions/{id}").Subrouter()

	s.HandleFunc("/connection", handler.SetConnection).Methods(http.MethodPut)
	s.HandleFunc("/content-types", handler.LoadContentTypes).Methods(http.MethodGet)
	s.HandleFunc("/test-connection", handler.TestConnection).Methods(http.MethodGet)
	s.HandleFunc("/schema", handler.DescribeSchema).Methods(http.MethodGet)
	s.HandleFunc("/collection", handler.SelectCollection).Methods(http.MethodPut)

	s.HandleFunc("/fields", handler.AddField).Methods(http.MethodPost)
	s.HandleFunc("/fields", handler.SetFields).Methods(http.MethodPut)
	s.HandleFunc("/fields/{field}", handler.RemoveField).Methods(http.MethodDelete)

	s.HandleFunc("/populate", handler.AddPopulate).Methods(http.MethodPost)
	s.HandleFunc("/populate", handler.SetPopulate).Methods(http.MethodPut)
	s.HandleFunc("/populate", handler.RemovePopulate).Methods(http.MethodDelete)
	s.HandleFunc("/populate/fields", handler.AddPopulateField).Methods(http.MethodPost)
	s.HandleFunc("/populate/fields", handler.RemovePopulateField).Methods(http.MethodDelete)

	s.HandleFunc("/sort", handler.AddSort).Methods(http.MethodPost)
	s.HandleFunc("/sort", handler.SetSort).Methods(http.MethodPut)
	s.HandleFunc("/sort/{field}", handler.RemoveSort).Methods(http.MethodDelete)

	s.HandleFunc("/filters", handler.SetFilters).Methods(http.MethodPut)
	s.HandleFunc("/filters", handler.PatchFilters).Methods(http.MethodPatch)
	s.HandleFunc("/filters", handler.ClearFilters).Methods(http.MethodDelete)
	s.HandleFunc("/filters/conditions", handler.AddCondition).Methods(http.MethodPost)
	s.HandleFunc("/filters/conditions/{index:[0-9]+}", handler.RemoveCondition).Methods(http.MethodDelete)

	s.HandleFunc("/pagination", handler.SetPagination).Methods(http.MethodPut)
	s.HandleFunc("/reset", handler.Reset).Methods(http.MethodPost)
	s.HandleFunc("/preview", handler.Preview).Methods(http.MethodGet)
	s.HandleFunc("/execute", handler.Execute).Methods(http.MethodPost)
	s.HandleFunc("/watch", handler.Watch).Methods(http.MethodGet)

	muxRouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
	})
	muxRouter.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed on "+r.URL.Path)
	})
}
