package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	handler := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/compile", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d within burst", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "rate_limit_exceeded", body.Error.Code)

	time.Sleep(600 * time.Millisecond)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterDifferentIPs(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(okHandler())

	for _, addr := range []string{"192.168.1.1:12345", "192.168.1.2:12345"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{"remote addr", "10.0.0.1:5555", nil, "10.0.0.1"},
		{"ipv6 remote addr", "[::1]:5555", nil, "::1"},
		{"x-forwarded-for chain", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:5555", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "198.51.100.7"},
		{"no port", "10.0.0.9", nil, "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expectedIP, getClientIP(req))
		})
	}
}

func TestRateLimiterWithCustomKeyFunc(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.MiddlewareWithKeyFunc(func(r *http.Request) string {
		return r.Header.Get("X-Session")
	})(okHandler())

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Session", session)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.getLimiter("old")
	clock = clock.Add(4 * time.Minute)
	rl.getLimiter("fresh")
	clock = clock.Add(2 * time.Minute)

	assert.Equal(t, 1, rl.evictIdle())
	assert.ElementsMatch(t, []string{"fresh"}, rl.GetTrackedIPs())
}

func TestRateLimiterStatsHandler(t *testing.T) {
	rl := NewRateLimiter(5, 3)
	rl.getLimiter("192.168.1.1").Allow()

	t.Run("single ip", func(t *testing.T) {
		w := httptest.NewRecorder()
		rl.StatsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rate-limit-stats?ip=192.168.1.1", nil))

		var info RateLimitInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
		assert.Equal(t, "192.168.1.1", info.IP)
		assert.Equal(t, 3, info.Burst)
		assert.Less(t, info.TokensRemaining, 3.0)
	})

	t.Run("untracked ip reports full burst", func(t *testing.T) {
		info := rl.GetRateLimitInfo("10.9.9.9")
		assert.Equal(t, 3.0, info.TokensRemaining)
	})

	t.Run("all", func(t *testing.T) {
		w := httptest.NewRecorder()
		rl.StatsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rate-limit-stats", nil))

		var stats map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, float64(1), stats["total_tracked_ips"])
	})
}
