package auth

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Signed request headers. Every protected endpoint requires all five.
const (
	HeaderDeviceID  = "X-DEX-DeviceId"
	HeaderTimestamp = "X-DEX-Timestamp"
	HeaderNonce     = "X-DEX-Nonce"
	HeaderBodyHash  = "X-DEX-BodySha256"
	HeaderSignature = "X-DEX-Signature"
)

// Authentication failure sentinels. Each one is terminal for the request;
// the caller regenerates a fresh timestamp/nonce/signature and resubmits.
var (
	// ErrMissingCredentials is returned when a signed header is absent or malformed.
	ErrMissingCredentials = errors.New("missing or malformed auth headers")

	// ErrRequestExpired is returned when the timestamp falls outside the freshness window.
	ErrRequestExpired = errors.New("request timestamp outside freshness window")

	// ErrNonceReplay is returned when the nonce was already seen for this device.
	ErrNonceReplay = errors.New("nonce replay detected")

	// ErrDeviceUnauthorized is returned when the device is unknown or disabled.
	ErrDeviceUnauthorized = errors.New("device unknown or disabled")

	// ErrRateLimited is returned when the device's token bucket is empty.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBodyIntegrity is returned when the body digest does not match the claimed hash.
	ErrBodyIntegrity = errors.New("body integrity check failed")

	// ErrSignatureInvalid is returned when the signature does not verify.
	ErrSignatureInvalid = errors.New("invalid request signature")
)

// Credentials carries the five signed header values of a request.
type Credentials struct {
	DeviceID  string // Derived identifier of the claimed device.
	Timestamp string // Millisecond unix timestamp, as sent (signed verbatim).
	Nonce     string // Single-use token for replay detection.
	BodyHash  string // Hex SHA-256 of the request body.
	Signature string // Base64 Ed25519 signature over the canonical string.
}

// CredentialsFromHeader extracts the signed headers from a request.
func CredentialsFromHeader(h http.Header) Credentials {
	return Credentials{
		DeviceID:  h.Get(HeaderDeviceID),
		Timestamp: h.Get(HeaderTimestamp),
		Nonce:     h.Get(HeaderNonce),
		BodyHash:  h.Get(HeaderBodyHash),
		Signature: h.Get(HeaderSignature),
	}
}

// complete reports whether all five fields are present.
func (c Credentials) complete() bool {
	return c.DeviceID != "" && c.Timestamp != "" && c.Nonce != "" &&
		c.BodyHash != "" && c.Signature != ""
}

// AuthenticatorConfig holds configuration for the request authenticator.
type AuthenticatorConfig struct {
	// Store is the device registry. Required.
	Store DeviceStore

	// Nonces is the replay-detection cache. Defaults to a fresh cache.
	Nonces *NonceCache

	// Limiter throttles non-local callers. Defaults to stock class limits.
	Limiter *RateLimiter

	// TimestampWindow bounds clock skew and the replay window symmetrically.
	// Default: 60 seconds.
	TimestampWindow time.Duration

	// NonceLifetime is how long a nonce stays recorded. It exceeds the
	// timestamp window so the scheduling path's own delay cannot reopen a
	// replay gap. Default: 65 seconds.
	NonceLifetime time.Duration

	// ClassifyEndpoint maps a request path to its rate limiting class.
	// Default: everything is ClassDefault.
	ClassifyEndpoint func(path string) EndpointClass

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// Authenticator produces an accept/reject decision for every incoming
// request before any handler runs. The ordered checks are: header presence,
// timestamp freshness, nonce replay, device lookup, rate limit (skipped for
// loopback callers), body integrity, signature. The first failure
// short-circuits.
type Authenticator struct {
	config AuthenticatorConfig
}

// NewAuthenticator creates an authenticator with the given config.
func NewAuthenticator(config AuthenticatorConfig) *Authenticator {
	// Apply defaults
	if config.Nonces == nil {
		config.Nonces = NewNonceCache()
	}
	if config.Limiter == nil {
		config.Limiter = NewRateLimiter(nil)
	}
	if config.TimestampWindow == 0 {
		config.TimestampWindow = 60 * time.Second
	}
	if config.NonceLifetime == 0 {
		config.NonceLifetime = 65 * time.Second
	}
	if config.ClassifyEndpoint == nil {
		config.ClassifyEndpoint = func(string) EndpointClass { return ClassDefault }
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &Authenticator{config: config}
}

// Verify runs the full check sequence for one request and returns nil on
// acceptance or one of the sentinel errors on rejection. Registry read
// failures are returned as-is and surface as internal errors.
//
// Side effects: on acceptance a nonce entry and a token decrement are
// committed. The nonce commit happens before the later checks and is not
// rolled back on rejection: a request rejected for an unrelated reason
// still consumes its nonce, so fixing the other problem requires a fresh
// nonce.
func (a *Authenticator) Verify(method, path string, creds Credentials, body []byte, remoteAddr string) error {
	if !creds.complete() {
		return ErrMissingCredentials
	}

	now := a.config.TimeNow()
	nowMs := float64(now.UnixMilli())

	// Clients send the timestamp as milliseconds; accept a fractional
	// value for tolerance with loosely-typed senders.
	reqTs, err := strconv.ParseFloat(creds.Timestamp, 64)
	if err != nil {
		return ErrMissingCredentials
	}

	if math.Abs(nowMs-reqTs) > float64(a.config.TimestampWindow.Milliseconds()) {
		return ErrRequestExpired
	}

	expiresAt := now.Add(a.config.NonceLifetime)
	if a.config.Nonces.CheckAndRemember(creds.DeviceID, creds.Nonce, now, expiresAt) {
		log.Printf("auth: nonce replay from device %s", creds.DeviceID)
		return ErrNonceReplay
	}

	device, err := a.config.Store.GetDevice(creds.DeviceID)
	if err != nil {
		return fmt.Errorf("device lookup: %w", err)
	}
	if device == nil || !device.Enabled {
		return ErrDeviceUnauthorized
	}

	// Loopback callers bypass rate limiting entirely.
	if !IsLoopbackAddr(remoteAddr) {
		class := a.config.ClassifyEndpoint(path)
		if !a.config.Limiter.TryConsume(creds.DeviceID, class, now) {
			log.Printf("auth: rate limit exceeded for device %s (%s)", creds.DeviceID, class)
			return ErrRateLimited
		}
	}

	// The signature covers the digest, not the literal bytes, so a
	// mismatched body with a valid digest header must be caught here.
	if BodyDigest(body) != creds.BodyHash {
		return ErrBodyIntegrity
	}

	canonical := CanonicalString(method, path, creds.Timestamp, creds.Nonce, creds.BodyHash)
	if !VerifyHexKeySignature(device.PublicKey, []byte(canonical), creds.Signature) {
		log.Printf("auth: invalid signature from device %s", creds.DeviceID)
		return ErrSignatureInvalid
	}

	return nil
}
