package auth

import (
	"sync"
	"time"
)

// NonceCache tracks recently-seen request nonces per device for replay
// detection. Entries expire; expired entries are purged lazily, scoped to
// the device being checked, so a chatty device never pays for the whole
// fleet's garbage.
//
// State is process-local and intentionally not persisted: the replay window
// is short enough that a restart resetting the cache is an acceptable
// tradeoff.
type NonceCache struct {
	mu     sync.Mutex
	nonces map[string]map[string]time.Time // device ID -> nonce -> expires at
}

// NewNonceCache creates an empty nonce cache.
func NewNonceCache() *NonceCache {
	return &NonceCache{
		nonces: make(map[string]map[string]time.Time),
	}
}

// CheckAndRemember purges this device's expired nonces, then reports whether
// the nonce was already seen. If it was not, the nonce is recorded with the
// given expiry in the same critical section, so two concurrent requests
// carrying the same nonce can never both observe "not seen".
func (c *NonceCache) CheckAndRemember(deviceID, nonce string, now, expiresAt time.Time) (replayed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked(deviceID, now)

	device, ok := c.nonces[deviceID]
	if !ok {
		device = make(map[string]time.Time)
		c.nonces[deviceID] = device
	}

	if _, seen := device[nonce]; seen {
		return true
	}

	device[nonce] = expiresAt
	return false
}

// Seen reports whether the nonce is currently recorded for the device,
// after purging expired entries. It does not record anything.
func (c *NonceCache) Seen(deviceID, nonce string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked(deviceID, now)

	_, seen := c.nonces[deviceID][nonce]
	return seen
}

// Remember records a nonce with an expiry, unconditionally.
func (c *NonceCache) Remember(deviceID, nonce string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	device, ok := c.nonces[deviceID]
	if !ok {
		device = make(map[string]time.Time)
		c.nonces[deviceID] = device
	}
	device[nonce] = expiresAt
}

// purgeLocked drops this device's expired nonces. Must be called with c.mu held.
func (c *NonceCache) purgeLocked(deviceID string, now time.Time) {
	device, ok := c.nonces[deviceID]
	if !ok {
		return
	}

	for nonce, expiresAt := range device {
		if !expiresAt.After(now) {
			delete(device, nonce)
		}
	}

	if len(device) == 0 {
		delete(c.nonces, deviceID)
	}
}
