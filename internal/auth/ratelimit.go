package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EndpointClass groups endpoints for rate limiting purposes.
// Speech recognition is expensive enough to get its own, tighter bucket;
// everything else shares the default class.
type EndpointClass string

const (
	// ClassRecognition covers the speech-recognition endpoint.
	ClassRecognition EndpointClass = "recognition"

	// ClassDefault covers every other protected endpoint.
	ClassDefault EndpointClass = "default"
)

// ClassLimit describes the token bucket parameters for an endpoint class.
type ClassLimit struct {
	// Capacity is the bucket size (maximum burst).
	Capacity int

	// Refill is the steady-state refill rate in tokens per second.
	Refill rate.Limit
}

// DefaultClassLimits returns the stock per-class bucket parameters:
// recognition 5 tokens refilled at 20/minute, default 10 tokens refilled
// at 60/minute. Callers adjust these through configuration.
func DefaultClassLimits() map[EndpointClass]ClassLimit {
	return map[EndpointClass]ClassLimit{
		ClassRecognition: {Capacity: 5, Refill: rate.Limit(20.0 / 60.0)},
		ClassDefault:     {Capacity: 10, Refill: rate.Limit(1)},
	}
}

// RateLimiter throttles requests per device and endpoint class using token
// buckets. Buckets are created lazily on first use and start full. State is
// process-local; a restart resets all buckets.
type RateLimiter struct {
	mu      sync.Mutex
	classes map[EndpointClass]ClassLimit
	buckets map[bucketKey]*rate.Limiter
}

type bucketKey struct {
	deviceID string
	class    EndpointClass
}

// NewRateLimiter creates a rate limiter with the given per-class parameters.
// Classes missing from the map fall back to the default class parameters.
func NewRateLimiter(classes map[EndpointClass]ClassLimit) *RateLimiter {
	if classes == nil {
		classes = DefaultClassLimits()
	}
	return &RateLimiter{
		classes: classes,
		buckets: make(map[bucketKey]*rate.Limiter),
	}
}

// TryConsume attempts to take one token from the device's bucket for the
// given class at the given instant. Returns false when the bucket is empty.
// The lookup-or-create and the token consumption happen under one lock, so
// concurrent requests from the same device cannot double-spend a token.
func (rl *RateLimiter) TryConsume(deviceID string, class EndpointClass, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{deviceID: deviceID, class: class}
	bucket, ok := rl.buckets[key]
	if !ok {
		limit := rl.classLimit(class)
		bucket = rate.NewLimiter(limit.Refill, limit.Capacity)
		rl.buckets[key] = bucket
	}

	return bucket.AllowN(now, 1)
}

// classLimit resolves the parameters for a class, falling back to the
// default class. Must be called with rl.mu held.
func (rl *RateLimiter) classLimit(class EndpointClass) ClassLimit {
	if limit, ok := rl.classes[class]; ok {
		return limit
	}
	if limit, ok := rl.classes[ClassDefault]; ok {
		return limit
	}
	return DefaultClassLimits()[ClassDefault]
}
