package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func readingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestSizeLimiter(t *testing.T) {
	handler := NewRequestSizeLimiter(1024).Middleware(readingHandler())

	t.Run("small request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/compile", bytes.NewReader(make([]byte, 512))))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1024", w.Header().Get(MaxRequestSizeHeader))
	})

	t.Run("declared length too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/compile", bytes.NewReader(make([]byte, 2048))))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "request_too_large")
	})

	t.Run("streamed body too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/compile", io.NopCloser(bytes.NewReader(make([]byte, 2048))))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRequestSizeLimiterDefault(t *testing.T) {
	limiter := NewRequestSizeLimiter(0)
	assert.Equal(t, int64(DefaultMaxRequestSize), limiter.MaxSize())

	w := httptest.NewRecorder()
	limiter.Middleware(readingHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 1024))))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1048576", w.Header().Get(MaxRequestSizeHeader))
}
