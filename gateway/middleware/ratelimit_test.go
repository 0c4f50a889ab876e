package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type throttleCounter struct{ reasons []string }

func (c *throttleCounter) RecordThrottle(reason string) { c.reasons = append(c.reasons, reason) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	counter := &throttleCounter{}
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, counter, nil)
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if len(counter.reasons) != 1 || counter.reasons[0] != "rate_limit" {
		t.Fatalf("unexpected throttle records %v", counter.reasons)
	}
}

func TestRateLimiterKeysCallersSeparately(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, nil)
	handler := limiter.Middleware(okHandler())

	for i := byte(1); i <= 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/offers", nil)
		req = req.WithContext(WithCaller(req.Context(), Caller{Address: [20]byte{i}}))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("caller %d: expected success, got %d", i, res.Code)
		}
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil, nil)
	handler := limiter.Middleware(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, nil)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	now = now.Add(10 * time.Minute)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected fresh bucket after idle eviction, got %d", res.Code)
	}
}
