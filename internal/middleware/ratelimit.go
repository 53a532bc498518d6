package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/campusgate/gatepass/internal/api"
)

// RateLimiter provides per-IP rate limiting using a token bucket, guarding
// the whole HTTP surface against a single misbehaving client or script
// hammering /verify or /passes.
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DefaultRateLimit is 20 requests per second sustained per IP, generous for
// a guard station scanning continuously but tight enough to blunt a flood.
const DefaultRateLimit rate.Limit = 20

// DefaultBurst allows short bursts above the sustained rate.
const DefaultBurst = 40

// NewRateLimiter creates a new per-IP rate limiter and starts its cleanup
// goroutine.
func NewRateLimiter(rps rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rps,
		burst:    burst,
		cleanup:  time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	for range ticker.C {
		rl.mu.Lock()
		for ip, client := range rl.limiters {
			if time.Since(client.lastSeen) > 3*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow reports whether a request from ip should proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.RLock()
	client, exists := rl.limiters[ip]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		client, exists = rl.limiters[ip]
		if !exists {
			client = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: time.Now()}
			rl.limiters[ip] = client
		}
		rl.mu.Unlock()
	}

	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// Middleware enforces the per-IP limit, responding 429 once exhausted.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			api.RateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractIP reads the client IP from proxy headers before falling back to
// RemoteAddr.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i, c := range xff {
			if c == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
