package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHTTPRequest records an inbound API request
	RecordHTTPRequest(method, route, status string, duration time.Duration)

	// IncRequestsInFlight increments the in-flight requests gauge
	IncRequestsInFlight()

	// DecRequestsInFlight decrements the in-flight requests gauge
	DecRequestsInFlight()

	// RecordStrapiRequest records an outbound call (content_types, execute, ping)
	RecordStrapiRequest(operation string, duration time.Duration, err error)

	// RecordQueryCompiled records the length of a compiled query string
	RecordQueryCompiled(length int)

	// RecordSessionLookup records a session store hit or miss
	RecordSessionLookup(provider string, hit bool)

	// RecordPanic records a recovered panic
	RecordPanic(methodName string)

	// Handler returns an HTTP handler exposing the metrics
	Handler() http.Handler
}

var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider, a no-op one if none is set
func GetProvider() Provider {
	if globalProvider == nil {
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHTTPRequest(method, route, status string, duration time.Duration) {}
func (n *NoOpProvider) IncRequestsInFlight()                                                  {}
func (n *NoOpProvider) DecRequestsInFlight()                                                  {}
func (n *NoOpProvider) RecordStrapiRequest(operation string, duration time.Duration, err error) {
}
func (n *NoOpProvider) RecordQueryCompiled(length int)                {}
func (n *NoOpProvider) RecordSessionLookup(provider string, hit bool) {}
func (n *NoOpProvider) RecordPanic(methodName string)                 {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
