package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
)

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// keyedRateLimiter keeps one token bucket per caller key. Idle buckets are pruned once their
// window has passed.
type keyedRateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]*rateEntry
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit requests per window for each caller. It returns nil, which disables
// limiting, when either argument is not positive.
func NewRateLimiter(limit int, window time.Duration) RateLimiter {
	return newKeyedRateLimiter(limit, window, nil)
}

func newKeyedRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedRateLimiter{
		limit:  rate.Limit(float64(limit) / window.Seconds()),
		burst:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]*rateEntry),
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok {
		l.pruneExpiredLocked(now)
		entry = &rateEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.store[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *keyedRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.Sub(entry.lastSeen) > l.window {
			delete(l.store, key)
		}
	}
}

// rateLimit answers 429 once the caller identified by keyFn exhausts its budget.
func rateLimit(limiter RateLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFn(r)) {
				w.Header().Set("Retry-After", "60")
				httpx.WriteError(r.Context(), w, httpx.NewError(codeRateLimited, "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey prefers the signed-in uid, then the guest token, then the client address set by
// middleware.RealIP.
func callerKey(r *http.Request) string {
	viewer := viewerFromRequest(r)
	switch {
	case viewer.UserID != "":
		return "user:" + viewer.UserID
	case viewer.GuestSession != "":
		return "guest:" + viewer.GuestSession
	default:
		host := r.RemoteAddr
		if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
			host = host[:i]
		}
		return "ip:" + host
	}
}
