package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSecurityHeaders(t *testing.T) {
	var nonce string
	h := SecurityHeaders(DefaultSecurityOptions(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = NonceFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.NotEmpty(t, nonce)
	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "'nonce-"+nonce+"'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestSecurityHeaders_NonceIsPerRequest(t *testing.T) {
	var nonces []string
	h := SecurityHeaders(DefaultSecurityOptions(false))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		nonces = append(nonces, NonceFromContext(r.Context()))
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Len(t, nonces, 2)
	assert.NotEqual(t, nonces[0], nonces[1])
}

func TestSecurityHeaders_ForceHTTPS(t *testing.T) {
	h := SecurityHeaders(DefaultSecurityOptions(true))(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://kkoala.example/about?x=1", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://kkoala.example/about?x=1", w.Header().Get("Location"))

	r := httptest.NewRequest(http.MethodGet, "http://kkoala.example/about", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_HourlyBudget(t *testing.T) {
	rl := NewRateLimiter(200, 3, discardLogger(), "/static/")
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(ok)

	send := func(path, remote string) int {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("/", "10.0.0.1:5000"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("/", "10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, send("/", "10.0.0.2:5000"), "other clients keep their budget")
	assert.Equal(t, http.StatusOK, send("/static/css/app.css", "10.0.0.1:5000"), "exempt paths are not counted")

	now = now.Add(time.Hour)
	assert.Equal(t, http.StatusOK, send("/", "10.0.0.1:5000"))
}

func TestRateLimiter_DailyBudget(t *testing.T) {
	rl := NewRateLimiter(2, 50, discardLogger())
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	// A rejected request must not drain the hourly budget.
	c := rl.clients["a"]
	assert.InDelta(t, 48, c.hourly.TokensAt(now), 0.01)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, discardLogger())
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("stale")
	now = now.Add(25 * time.Hour)
	rl.allow("fresh")
	rl.Cleanup()

	assert.NotContains(t, rl.clients, "stale")
	assert.Contains(t, rl.clients, "fresh")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/about", ok)
	r.Handle("/metrics", m.Exposition())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/about", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.True(t, strings.Contains(body, `kkoala_http_requests_total{method="GET",route="/about",status="200"} 1`), body)
	assert.Contains(t, body, `route="unmatched",status="404"`)
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:4711"
	assert.Equal(t, "192.0.2.7", IPFromRequest(r))

	r.RemoteAddr = "192.0.2.7"
	assert.Equal(t, "192.0.2.7", IPFromRequest(r))
}
