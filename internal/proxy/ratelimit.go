package proxy

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/covegate/secrets-proxy/internal/config"
)

// RateLimiter applies a per-run token bucket ahead of the pipeline.
// Buckets are keyed by the run identifier header, falling back to the
// remote address for requests that carry none (those fail
// authentication anyway, but still cost a store lookup).
type RateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*rate.Limiter
	limit       rate.Limit
	burst       int
	runIDHeader string
}

// NewRateLimiter creates a limiter from config.
func NewRateLimiter(cfg config.RateLimitConfig, runIDHeader string) *RateLimiter {
	return &RateLimiter{
		buckets:     make(map[string]*rate.Limiter),
		limit:       rate.Limit(cfg.RPS),
		burst:       cfg.Burst,
		runIDHeader: runIDHeader,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.buckets[key]; ok {
		return l
	}
	if len(rl.buckets) >= config.MaxRateLimitBuckets {
		rl.buckets = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets[key] = l
	return l
}

// Middleware wraps next with the per-run rate check.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(rl.runIDHeader)
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.limiter(key).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
