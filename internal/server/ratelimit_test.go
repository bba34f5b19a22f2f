package server

import (
	"errors"
	"testing"
	"time"
)

type fakeTokenStore struct {
	keys    []string
	allowed bool
	retry   time.Duration
	err     error
}

func (f *fakeTokenStore) Allow(key string, _ int, _ time.Duration) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.retry, f.err
}

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	bucket := newTokenBucket(100, 2)
	if !bucket.Allow() || !bucket.Allow() {
		t.Fatal("burst capacity should admit two requests")
	}
	if bucket.Allow() {
		t.Fatal("third immediate request should be rejected")
	}
	time.Sleep(30 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("bucket should refill over time")
	}
}

func TestAllowAuthInMemory(t *testing.T) {
	rl, err := newRateLimiter(RateLimitConfig{AuthLimit: 2, AuthWindow: time.Minute})
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowAuth("10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("attempt %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, retry, err := rl.AllowAuth("10.0.0.1")
	if err != nil {
		t.Fatalf("throttled attempt err: %v", err)
	}
	if allowed {
		t.Fatal("expected throttle after limit")
	}
	if retry <= 0 {
		t.Fatalf("expected positive retry hint, got %v", retry)
	}

	// Other clients keep their own budget.
	allowed, _, err = rl.AllowAuth("10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("second client: allowed=%v err=%v", allowed, err)
	}
}

func TestAllowAuthUnlimitedWhenDisabled(t *testing.T) {
	rl, err := newRateLimiter(RateLimitConfig{})
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}
	for i := 0; i < 50; i++ {
		allowed, _, err := rl.AllowAuth("10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("attempt %d rejected with no limit configured", i)
		}
	}
}

func TestAllowAuthDelegatesToStore(t *testing.T) {
	store := &fakeTokenStore{allowed: false, retry: 30 * time.Second}
	rl := &rateLimiter{authLimit: 3, authWindow: time.Minute, store: store}

	allowed, retry, err := rl.AllowAuth("203.0.113.9")
	if err != nil {
		t.Fatalf("allow auth: %v", err)
	}
	if allowed || retry != 30*time.Second {
		t.Fatalf("allowed=%v retry=%v", allowed, retry)
	}
	if len(store.keys) != 1 || store.keys[0] != "yamdb:auth:203.0.113.9" {
		t.Fatalf("store keys = %v", store.keys)
	}
}

func TestAllowAuthSurfacesStoreErrors(t *testing.T) {
	store := &fakeTokenStore{err: errors.New("redis down")}
	rl := &rateLimiter{authLimit: 3, authWindow: time.Minute, store: store}

	if _, _, err := rl.AllowAuth("203.0.113.9"); err == nil {
		t.Fatal("expected store error to surface")
	}
}
