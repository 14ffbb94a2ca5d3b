package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rateLimitMessage = "Too many requests, slow down!"

type rateWindow struct {
	start time.Time
	hits  int
}

// RateLimiter counts requests per client key over fixed windows. Each
// protected route gets its own instance with its own threshold.
type RateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	windows   map[string]*rateWindow
	maxMemory int
}

func NewRateLimiter(maxHits int, window time.Duration) *RateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		maxHits:   maxHits,
		window:    window,
		windows:   make(map[string]*rateWindow),
		maxMemory: 5000,
	}
}

// Middleware answers a uniform 429 once the key's count for the current
// window exceeds the threshold, regardless of which route it guards.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.Allow(ClientIP(r), time.Now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": rateLimitMessage})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok || now.Sub(win.start) >= l.window {
		l.windows[key] = &rateWindow{start: now, hits: 1}
		l.sweep(now)
		return true, 0
	}

	win.hits++
	if win.hits > l.maxHits {
		retryAfter := win.start.Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	return true, 0
}

// sweep drops elapsed windows once the map grows past maxMemory. Caller
// holds the mutex.
func (l *RateLimiter) sweep(now time.Time) {
	if len(l.windows) <= l.maxMemory {
		return
	}
	for key, win := range l.windows {
		if now.Sub(win.start) >= l.window {
			delete(l.windows, key)
		}
	}
}

// ClientIP derives the rate-limit key from the first X-Forwarded-For hop,
// falling back to the socket address. Keys are IP-only, so clients behind a
// shared NAT or proxy share a budget.
func ClientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
