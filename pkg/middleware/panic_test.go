package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/metrics"
)

// mockMetricsProvider records RecordPanic calls.
type mockMetricsProvider struct {
	metrics.NoOpProvider
	panicRecorded bool
	methodName    string
}

func (m *mockMetricsProvider) RecordPanic(methodName string) {
	m.panicRecorded = true
	m.methodName = methodName
}

func TestPanicRecovery(t *testing.T) {
	logger.Init(true)

	mockProvider := &mockMetricsProvider{}
	originalProvider := metrics.GetProvider()
	metrics.SetProvider(mockProvider)
	defer metrics.SetProvider(originalProvider)

	t.Run("recovers from panic and returns 500", func(t *testing.T) {
		mockProvider.panicRecorded = false
		mockProvider.methodName = ""

		panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("something went terribly wrong")
		})

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/execute", nil)
		rr := httptest.NewRecorder()

		PanicRecovery(panicHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Body.String(), `"success":false`)
		assert.Contains(t, rr.Body.String(), "panic in PanicMiddleware: something went terribly wrong")
		assert.True(t, mockProvider.panicRecorded)
		assert.Equal(t, panicMiddlewareMethodName, mockProvider.methodName)
	})

	t.Run("passes through without panic", func(t *testing.T) {
		mockProvider.panicRecorded = false

		okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})

		rr := httptest.NewRecorder()
		PanicRecovery(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
		assert.False(t, mockProvider.panicRecorded)
	})

	t.Run("re-panics on ErrAbortHandler", func(t *testing.T) {
		abort := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		})

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			PanicRecovery(abort).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}
