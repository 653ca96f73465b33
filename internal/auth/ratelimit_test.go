package auth

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestDefaultClassBucket(t *testing.T) {
	rl := NewRateLimiter(nil)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	// Default class: capacity 10. All ten immediate requests succeed.
	for i := 0; i < 10; i++ {
		if !rl.TryConsume("dev1", ClassDefault, now) {
			t.Fatalf("request %d should be allowed within capacity", i+1)
		}
	}

	// The 11th within the same second is rejected.
	if rl.TryConsume("dev1", ClassDefault, now) {
		t.Error("11th request within the same second must be rejected")
	}

	// After one second (refill 1/s) exactly one more succeeds.
	later := now.Add(time.Second)
	if !rl.TryConsume("dev1", ClassDefault, later) {
		t.Error("one request should succeed after a 1s refill")
	}
	if rl.TryConsume("dev1", ClassDefault, later) {
		t.Error("only one token should have refilled after 1s")
	}
}

func TestRecognitionClassBucket(t *testing.T) {
	rl := NewRateLimiter(nil)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	// Recognition class: capacity 5, refill 20/minute (one token per 3s).
	for i := 0; i < 5; i++ {
		if !rl.TryConsume("dev1", ClassRecognition, now) {
			t.Fatalf("request %d should be allowed within capacity", i+1)
		}
	}
	if rl.TryConsume("dev1", ClassRecognition, now) {
		t.Error("6th recognition request must be rejected")
	}

	if !rl.TryConsume("dev1", ClassRecognition, now.Add(3*time.Second)) {
		t.Error("one token should refill after 3 seconds")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(nil)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	// Drain dev1's recognition bucket.
	for i := 0; i < 5; i++ {
		rl.TryConsume("dev1", ClassRecognition, now)
	}

	// dev1's default bucket and dev2's recognition bucket are unaffected.
	if !rl.TryConsume("dev1", ClassDefault, now) {
		t.Error("default class bucket must be independent of recognition class")
	}
	if !rl.TryConsume("dev2", ClassRecognition, now) {
		t.Error("dev2's bucket must be independent of dev1's")
	}
}

func TestRefillSaturatesAtCapacity(t *testing.T) {
	rl := NewRateLimiter(map[EndpointClass]ClassLimit{
		ClassDefault: {Capacity: 2, Refill: rate.Limit(1)},
	})
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	// Drain the bucket.
	rl.TryConsume("dev1", ClassDefault, now)
	rl.TryConsume("dev1", ClassDefault, now)

	// A long idle period refills to capacity, not beyond: only 2 requests
	// succeed afterwards.
	later := now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if rl.TryConsume("dev1", ClassDefault, later) {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("expected 2 allowed after saturation, got %d", allowed)
	}
}

func TestUnknownClassFallsBackToDefault(t *testing.T) {
	rl := NewRateLimiter(map[EndpointClass]ClassLimit{
		ClassDefault: {Capacity: 1, Refill: rate.Limit(1)},
	})
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	if !rl.TryConsume("dev1", EndpointClass("mystery"), now) {
		t.Error("first request on unknown class should be allowed")
	}
	if rl.TryConsume("dev1", EndpointClass("mystery"), now) {
		t.Error("unknown class should inherit default capacity of 1")
	}
}

func TestConfigurableLimits(t *testing.T) {
	// Parameters are configuration, not constants baked into the algorithm.
	rl := NewRateLimiter(map[EndpointClass]ClassLimit{
		ClassRecognition: {Capacity: 1, Refill: rate.Limit(0.5)},
		ClassDefault:     {Capacity: 3, Refill: rate.Limit(2)},
	})
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	if !rl.TryConsume("dev1", ClassRecognition, now) {
		t.Error("first recognition request should pass")
	}
	if rl.TryConsume("dev1", ClassRecognition, now) {
		t.Error("capacity 1 should reject the second request")
	}

	for i := 0; i < 3; i++ {
		if !rl.TryConsume("dev1", ClassDefault, now) {
			t.Fatalf("default request %d should pass with capacity 3", i+1)
		}
	}
	if rl.TryConsume("dev1", ClassDefault, now) {
		t.Error("4th default request should be rejected")
	}
}
