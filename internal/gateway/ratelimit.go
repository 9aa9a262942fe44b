package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIPRateLimiters bounds the limiter map so spoofed addresses cannot exhaust memory.
const maxIPRateLimiters = 10000

// IPRateLimiter manages per-IP token buckets.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows r requests per second per client IP with the given burst (at least 1).
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiter(ip).Allow()
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	// At capacity: evict the least recently seen address.
	if len(l.limiters) >= maxIPRateLimiters {
		var oldestIP string
		var oldest time.Time
		for addr, entry := range l.limiters {
			if oldestIP == "" || entry.lastSeen.Before(oldest) {
				oldestIP, oldest = addr, entry.lastSeen
			}
		}
		delete(l.limiters, oldestIP)
	}

	lim := rate.NewLimiter(l.rate, l.burst)
	l.limiters[ip] = &rateLimiterEntry{limiter: lim, lastSeen: now}
	return lim
}

// Cleanup removes limiters not used within maxAge and returns how many were removed.
func (l *IPRateLimiter) Cleanup(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cleaned := 0
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > maxAge {
			delete(l.limiters, ip)
			cleaned++
		}
	}
	return cleaned
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *IPRateLimiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(maxAge)
		}
	}
}

// rateLimitMiddleware rejects requests over the per-IP rate with 429.
// RemoteAddr has already been rewritten by middleware.RealIP.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			s.deps.Metrics.RateLimited(r.URL.Path)
			s.logger.Warn("per-IP rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
