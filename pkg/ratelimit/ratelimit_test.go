package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// 10 requests per second, burst of 2: the bucket starts with 2 tokens
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("api.example") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("api.example") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("api.example") {
		t.Error("Third request should be rate limited")
	}

	// Keys are independent
	if !limiter.Allow("other.example") {
		t.Error("Other host should be allowed")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.Allow("api.example") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestUnlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatalf("request %d limited with rate disabled", i)
		}
	}
}

func TestTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiter := NewLimiter(1, 1)
	client := &http.Client{Transport: limiter.Transport(nil)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	resp.Body.Close()

	// The bucket is empty; a short deadline must fail while waiting
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Error("second request should fail waiting for a token")
	}
}
