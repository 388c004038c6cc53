package middleware

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (1MB)
	DefaultMaxRequestSize = 1 << 20

	// MaxRequestSizeHeader is the header name for max request size
	MaxRequestSizeHeader = "X-Max-Request-Size"
)

// RequestSizeLimiter limits the size of request bodies
type RequestSizeLimiter struct {
	maxSize int64
}

// NewRequestSizeLimiter creates a new request size limiter
// maxSize is in bytes. If 0, uses DefaultMaxRequestSize
func NewRequestSizeLimiter(maxSize int64) *RequestSizeLimiter {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}
	return &RequestSizeLimiter{
		maxSize: maxSize,
	}
}

// MaxSize returns the enforced limit in bytes
func (rsl *RequestSizeLimiter) MaxSize() int64 {
	return rsl.maxSize
}

// Middleware returns an HTTP middleware that enforces request size limits.
// Requests that declare an oversized Content-Length are refused before the
// handler runs; others are capped with http.MaxBytesReader.
func (rsl *RequestSizeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(MaxRequestSizeHeader, strconv.FormatInt(rsl.maxSize, 10))

		if r.ContentLength > rsl.maxSize {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("request body exceeds %d bytes", rsl.maxSize))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, rsl.maxSize)
		next.ServeHTTP(w, r)
	})
}
