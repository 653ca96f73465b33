// Package auth provides device trust and request authentication for the node.
// It proves every inbound request originates from a previously-paired,
// still-enabled device, rejects replayed or stale requests, throttles abusive
// callers, and bootstraps new devices through a proof-of-possession pairing
// handshake.
//
// The pairing flow works as follows:
// 1. Operator runs `dexhub pair` to generate a 6-digit code (valid for 5 minutes)
// 2. The device signs "PAIR:<code>" with its Ed25519 key and POSTs to /pair/confirm
// 3. The node verifies the proof, derives the device ID from the public key,
//    and stores an enabled device record
// 4. The device signs every subsequent request with the same key
//
// Security considerations:
// - Pairing codes are short-lived and single-use
// - Code generation and revocation are restricted to loopback callers
// - Requests carry a timestamp (60s window) and a single-use nonce (65s window)
// - The request body is integrity-checked against a signed digest
// - Non-local callers are throttled per device and endpoint class
package auth

import (
	"github.com/dexhub/node/internal/storage"
)

// Device is an alias for storage.Device to avoid import cycles.
// This allows the auth package to work with devices without duplicating the struct.
type Device = storage.Device

// DeviceStore defines the interface for persisting paired devices.
// This interface is implemented by storage.SQLiteStore.
// Implementations must be safe for concurrent access.
type DeviceStore interface {
	// SaveDevice persists a device record.
	// If a device with the same ID exists, it is replaced.
	SaveDevice(device *Device) error

	// GetDevice retrieves a device by ID.
	// Returns nil, nil if the device does not exist.
	GetDevice(id string) (*Device, error)

	// ListDevices returns all paired devices.
	ListDevices() ([]*Device, error)

	// SetEnabled flips the enabled flag for a device.
	// Returns storage.ErrDeviceNotFound if the device does not exist.
	SetEnabled(id string, enabled bool) error
}
