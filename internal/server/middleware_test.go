package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestIPLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	l := newIPLimiter(rate.Limit(0), 2)

	if !l.allow("1.2.3.4") {
		t.Error("expected first request to be allowed")
	}
	if !l.allow("1.2.3.4") {
		t.Error("expected second request (within burst) to be allowed")
	}
	if l.allow("1.2.3.4") {
		t.Error("expected third request to be rate-limited")
	}
}

func TestIPLimiterTracksIndependentKeys(t *testing.T) {
	l := newIPLimiter(rate.Limit(0), 1)

	if !l.allow("1.1.1.1") {
		t.Error("expected first IP's first request to be allowed")
	}
	if !l.allow("2.2.2.2") {
		t.Error("expected second IP's first request to be allowed independently")
	}
	if l.allow("1.1.1.1") {
		t.Error("expected first IP's second request to be rate-limited")
	}
}

func TestRateLimitMiddlewareWritesRateLimitExceeded(t *testing.T) {
	l := newIPLimiter(rate.Limit(0), 1)
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })
	handler := rateLimit(l)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req)
	if w1.Code != http.StatusOK || called != 1 {
		t.Fatalf("expected first request through, got status %d called %d", w1.Code, called)
	}

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w2.Code)
	}
	if called != 1 {
		t.Errorf("expected next handler not called on second request, called=%d", called)
	}
	if w2.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After: 60, got %q", w2.Header().Get("Retry-After"))
	}
}

func TestClientIPPrefersXRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Real-IP", "203.0.113.9")

	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Errorf("expected X-Real-IP to win, got %q", ip)
	}
}

func TestClientIPFallsBackToRemoteAddrHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Errorf("expected host-only remote addr, got %q", ip)
	}
}
