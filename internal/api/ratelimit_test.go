package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d blocked within limit", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request over limit allowed")
	}
	// Other IPs have their own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("fresh IP blocked")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("10.0.0.1") || rl.Allow("10.0.0.1") {
		t.Fatal("first window misbehaved")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("bucket did not reset after the window")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:4242"
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientIP(r); got != "198.51.100.7" {
		t.Fatalf("forwarded clientIP = %q", got)
	}
}
