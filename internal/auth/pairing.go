package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/dexhub/node/internal/storage"
)

// Common errors for the pairing and revocation flows.
var (
	// ErrCodeInvalid is returned when the code doesn't match any pending pairing.
	ErrCodeInvalid = errors.New("invalid pairing code")

	// ErrCodeExpired is returned when a pairing code has expired.
	ErrCodeExpired = errors.New("pairing code has expired")

	// ErrProofOfPossession is returned when the pairing signature does not
	// verify against the submitted public key.
	ErrProofOfPossession = errors.New("proof of possession failed")

	// ErrLocalOnly is returned when a loopback-only operation is attempted
	// from a remote address.
	ErrLocalOnly = errors.New("operation restricted to local callers")

	// ErrDeviceNotFound is returned when a revoke target does not exist.
	ErrDeviceNotFound = errors.New("device not found")
)

// pairingProofPrefix prefixes the challenge a device signs to prove key
// possession during pairing.
const pairingProofPrefix = "PAIR:"

// PairingProofMessage returns the exact bytes a device must sign to confirm
// a pairing code.
func PairingProofMessage(code string) []byte {
	return []byte(pairingProofPrefix + code)
}

// CodeDelivery carries a freshly generated pairing code to the operator
// through an out-of-band channel. The node never returns the code to the
// HTTP caller that requested it.
type CodeDelivery interface {
	Deliver(code string, expiresAt time.Time)
}

// ConsoleDelivery writes pairing codes to a writer, typically the operator's
// console.
type ConsoleDelivery struct {
	Out io.Writer
}

// Deliver prints the code prominently.
func (d ConsoleDelivery) Deliver(code string, expiresAt time.Time) {
	fmt.Fprintf(d.Out, "*** PAIRING CODE: %s (valid until %s) ***\n",
		code, expiresAt.Format(time.Kitchen))
}

// PairingConfig holds configuration for the pairing coordinator.
type PairingConfig struct {
	// CodeExpiry is how long a pairing code remains valid.
	// Default: 5 minutes.
	CodeExpiry time.Duration

	// Store is where confirmed devices are persisted. Required.
	Store DeviceStore

	// Delivery carries generated codes to the operator. Required.
	Delivery CodeDelivery

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// PairingCoordinator manages short-lived pairing codes and turns a code plus
// a signed proof into a new device record.
//
// Code lifecycle: Created -> Confirmed (code deleted) or Created -> Expired
// (deleted lazily at the next confirmation attempt, or by Sweep).
type PairingCoordinator struct {
	mu sync.Mutex

	config PairingConfig

	// pending maps code -> creation time. Multiple codes may be pending at
	// once (e.g., pairing two devices back to back).
	pending map[string]time.Time
}

// NewPairingCoordinator creates a pairing coordinator with the given config.
func NewPairingCoordinator(config PairingConfig) *PairingCoordinator {
	// Apply defaults
	if config.CodeExpiry == 0 {
		config.CodeExpiry = 5 * time.Minute
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &PairingCoordinator{
		config:  config,
		pending: make(map[string]time.Time),
	}
}

// RequestPairing generates a fresh 6-digit code and hands it to the delivery
// channel. Only loopback callers may initiate pairing; remote attempts get
// ErrLocalOnly without generating anything.
func (pc *PairingCoordinator) RequestPairing(remoteAddr string) (string, error) {
	if !IsLoopbackAddr(remoteAddr) {
		log.Printf("auth: rejected pairing request from non-loopback address %s", remoteAddr)
		return "", ErrLocalOnly
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	// crypto/rand keeps the code unpredictable.
	code, err := generateRandomCode(6)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := pc.config.TimeNow()
	pc.pending[code] = now

	expiresAt := now.Add(pc.config.CodeExpiry)
	log.Printf("auth: generated pairing code (expires at %s)", expiresAt.Format(time.RFC3339))

	pc.config.Delivery.Deliver(code, expiresAt)

	return code, nil
}

// ConfirmPairing exchanges a pending code plus a signed proof of possession
// for a device record. Anyone may call it; the proof is self-certifying.
//
// The signature must verify against publicKeyHex over the literal message
// "PAIR:<code>". On success the code is deleted (single use), the device ID
// is derived from the public key, and an enabled record is persisted -
// overwriting any prior record for the same key.
func (pc *PairingCoordinator) ConfirmPairing(code, publicKeyHex, signatureB64, role string) (string, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	createdAt, ok := pc.pending[code]
	if !ok {
		log.Printf("auth: pairing attempt with unknown code")
		return "", ErrCodeInvalid
	}

	now := pc.config.TimeNow()
	if now.Sub(createdAt) > pc.config.CodeExpiry {
		delete(pc.pending, code)
		log.Printf("auth: pairing attempt with expired code")
		return "", ErrCodeExpired
	}

	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil || !VerifySignature(pubBytes, PairingProofMessage(code), signatureB64) {
		log.Printf("auth: pairing proof of possession failed")
		return "", ErrProofOfPossession
	}

	deviceID := DeviceIDFromPublicKey(pubBytes)

	device := &Device{
		ID:        deviceID,
		PublicKey: publicKeyHex,
		Role:      normalizeRole(role),
		Enabled:   true,
		CreatedAt: now,
	}

	// Losing this write would desynchronize trust state, so a persistence
	// failure is fatal to the pairing attempt and keeps the code pending.
	if err := pc.config.Store.SaveDevice(device); err != nil {
		return "", fmt.Errorf("save device: %w", err)
	}

	delete(pc.pending, code)

	log.Printf("auth: paired device %s (role=%s)", deviceID, device.Role)

	return deviceID, nil
}

// Revoke disables a device. Only loopback callers may revoke. The record is
// kept (disabled) for auditability. Returns ErrDeviceNotFound if no such
// device exists.
func (pc *PairingCoordinator) Revoke(deviceID, remoteAddr string) error {
	if !IsLoopbackAddr(remoteAddr) {
		log.Printf("auth: rejected revoke from non-loopback address %s", remoteAddr)
		return ErrLocalOnly
	}

	err := pc.config.Store.SetEnabled(deviceID, false)
	if errors.Is(err, storage.ErrDeviceNotFound) {
		return ErrDeviceNotFound
	}
	if err != nil {
		return fmt.Errorf("disable device: %w", err)
	}

	log.Printf("auth: revoked device %s", deviceID)
	return nil
}

// Sweep removes pending codes older than the code expiry and returns how
// many were dropped. Abandoned codes are otherwise only cleaned up lazily
// when someone tries to confirm them, so the serve loop runs this
// periodically to bound the table.
func (pc *PairingCoordinator) Sweep(now time.Time) int {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	removed := 0
	for code, createdAt := range pc.pending {
		if now.Sub(createdAt) > pc.config.CodeExpiry {
			delete(pc.pending, code)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("auth: swept %d expired pairing codes", removed)
	}

	return removed
}

// PendingCount reports how many codes are currently pending.
func (pc *PairingCoordinator) PendingCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.pending)
}

// normalizeRole maps arbitrary role strings onto the known set,
// defaulting to client.
func normalizeRole(role string) string {
	switch role {
	case storage.RoleAdmin:
		return storage.RoleAdmin
	default:
		return storage.RoleClient
	}
}

// generateRandomCode generates a random numeric code of the given length.
// Uses crypto/rand for security.
func generateRandomCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[n.Int64()]
	}

	return string(code), nil
}
