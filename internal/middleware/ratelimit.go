package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map between cleanups.
const maxTrackedClients = 10000

type clientLimiter struct {
	daily    *rate.Limiter
	hourly   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client daily and hourly request budget.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	perDay  int
	perHour int
	exempt  []string
	now     func() time.Time
	idleTTL time.Duration
	logger  *slog.Logger
}

// NewRateLimiter creates a limiter allowing perDay and perHour requests per
// client IP. Paths starting with one of exemptPrefixes are not counted.
func NewRateLimiter(perDay, perHour int, logger *slog.Logger, exemptPrefixes ...string) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		perDay:  perDay,
		perHour: perHour,
		exempt:  exemptPrefixes,
		now:     time.Now,
		idleTTL: 24 * time.Hour,
		logger:  logger,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{
			daily:  rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(rl.perDay)), rl.perDay),
			hourly: rate.NewLimiter(rate.Every(time.Hour/time.Duration(rl.perHour)), rl.perHour),
		}
		rl.clients[key] = c
	}
	c.lastSeen = now

	// Check both before consuming so a rejected request costs nothing.
	if c.daily.TokensAt(now) < 1 || c.hourly.TokensAt(now) < 1 {
		return false
	}
	c.daily.AllowN(now, 1)
	c.hourly.AllowN(now, 1)
	return true
}

func (rl *RateLimiter) exempted(path string) bool {
	for _, p := range rl.exempt {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.exempted(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := IPFromRequest(r)
		if !rl.allow(key) {
			rl.logger.Warn("Rate limit exceeded", "client", key, "path", r.URL.Path, "method", r.Method)
			w.Header().Set("Retry-After", "3600")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup removes limiters of clients idle for longer than a day and resets
// the map if it still exceeds its bound.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
	if len(rl.clients) > maxTrackedClients {
		rl.clients = make(map[string]*clientLimiter)
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}
