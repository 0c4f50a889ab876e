package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"otcswap/crypto"
)

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// ThrottleRecorder receives a reason each time a request is rejected.
type ThrottleRecorder interface {
	RecordThrottle(reason string)
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client. Authenticated callers are
// keyed by address, everyone else by IP.
type RateLimiter struct {
	logger   *slog.Logger
	limit    RateLimit
	metrics  ThrottleRecorder
	mu       sync.Mutex
	visitors map[string]*rateEntry
	idleTTL  time.Duration
	clockNow func() time.Time
}

func NewRateLimiter(limit RateLimit, metrics ThrottleRecorder, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		metrics:  metrics,
		visitors: make(map[string]*rateEntry),
		idleTTL:  5 * time.Minute,
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limit.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		id := clientID(req)
		if !r.obtainLimiter(id).Allow() {
			if r.metrics != nil {
				r.metrics.RecordThrottle("rate_limit")
			}
			r.logger.Debug("request throttled", "client", id, "path", req.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictIdle(now)
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r.limit.RequestsPerMinute/60.0), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// evictIdle drops buckets untouched for idleTTL. Caller holds r.mu.
func (r *RateLimiter) evictIdle(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if c, ok := CallerFromContext(r.Context()); ok {
		return "addr:" + crypto.FormatAccount(c.Address)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return "ip:" + parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
