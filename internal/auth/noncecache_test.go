package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCheckAndRememberFreshNonce(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	if cache.CheckAndRemember("dev1", "n1", now, now.Add(65*time.Second)) {
		t.Error("fresh nonce must not be reported as replay")
	}

	// Same nonce within the window is a replay.
	if !cache.CheckAndRemember("dev1", "n1", now.Add(time.Second), now.Add(66*time.Second)) {
		t.Error("repeated nonce within window must be a replay")
	}
}

func TestNoncesAreScopedPerDevice(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	cache.Remember("dev1", "n1", now.Add(time.Minute))

	if cache.Seen("dev2", "n1", now) {
		t.Error("nonce recorded for dev1 must not be seen for dev2")
	}
	if !cache.Seen("dev1", "n1", now) {
		t.Error("nonce recorded for dev1 must be seen for dev1")
	}
}

func TestExpiredNonceIsPurged(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	cache.Remember("dev1", "n1", now.Add(65*time.Second))

	// Just before expiry: still seen.
	if !cache.Seen("dev1", "n1", now.Add(64*time.Second)) {
		t.Error("nonce must still be seen before expiry")
	}

	// At/after expiry: purged, never treated as seen again.
	if cache.Seen("dev1", "n1", now.Add(65*time.Second)) {
		t.Error("expired nonce must not be seen")
	}
	if cache.CheckAndRemember("dev1", "n1", now.Add(66*time.Second), now.Add(2*time.Minute)) {
		t.Error("expired nonce must be accepted as fresh again")
	}
}

func TestPurgeIsScopedToDevice(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	cache.Remember("dev1", "old", now.Add(-time.Second))
	cache.Remember("dev2", "old", now.Add(-time.Second))

	// Checking dev1 purges dev1 only; dev2's expired entry stays until
	// dev2 is checked.
	cache.Seen("dev1", "anything", now)

	cache.mu.Lock()
	_, dev1Exists := cache.nonces["dev1"]
	dev2 := cache.nonces["dev2"]
	cache.mu.Unlock()

	if dev1Exists {
		t.Error("dev1's expired entries should be purged and the empty map dropped")
	}
	if len(dev2) != 1 {
		t.Errorf("dev2's entries must be untouched, got %d", len(dev2))
	}
}

func TestCheckAndRememberConcurrent(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	// Many goroutines race on the same (device, nonce) pair; exactly one
	// must observe "not seen".
	const goroutines = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		accepts int
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndRemember("dev1", "shared", now, now.Add(time.Minute)) {
				mu.Lock()
				accepts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepts != 1 {
		t.Errorf("expected exactly 1 acceptance, got %d", accepts)
	}
}

func TestManyDevicesIndependent(t *testing.T) {
	cache := NewNonceCache()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		device := fmt.Sprintf("dev%d", i)
		if cache.CheckAndRemember(device, "n", now, now.Add(time.Minute)) {
			t.Fatalf("same nonce on different devices must be independent (device %s)", device)
		}
	}
}
