// Package client implements the device side of the trust protocol. It
// manages the device keypair and produces the signed headers the node's
// authenticator verifies. The CLI uses it for enroll and admin commands;
// tests use it to drive the full handshake end to end.
package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dexhub/node/internal/auth"
)

// keyFileMode keeps the private key readable only by the owner.
const keyFileMode = 0600

// Signer holds a device keypair and signs outgoing requests.
type Signer struct {
	priv ed25519.PrivateKey

	// TimeNow returns the current time. Tests replace it to pin
	// request timestamps.
	TimeNow func() time.Time
}

// NewSigner generates a fresh device keypair.
func NewSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	return &Signer{priv: priv, TimeNow: time.Now}, nil
}

// SignerFromSeed builds a Signer from a 32-byte Ed25519 seed.
func SignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid key seed length %d", len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed), TimeNow: time.Now}, nil
}

// LoadOrCreateSigner reads the hex-encoded key seed at path, generating
// and persisting a new keypair if the file does not exist. The default
// location is ~/.dexhub/device_key.
func LoadOrCreateSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("malformed device key file %s: %w", path, err)
		}
		return SignerFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read device key: %w", err)
	}

	s, err := NewSigner()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	seedHex := hex.EncodeToString(s.priv.Seed())
	if err := os.WriteFile(path, []byte(seedHex), keyFileMode); err != nil {
		return nil, fmt.Errorf("failed to save device key: %w", err)
	}
	return s, nil
}

// DefaultKeyPath returns ~/.dexhub/device_key.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dexhub", "device_key"), nil
}

// PublicKeyHex returns the hex-encoded public key, the form the pairing
// endpoint registers.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

// DeviceID returns the registry identifier derived from the public key.
func (s *Signer) DeviceID() string {
	return auth.DeviceIDFromPublicKey(s.priv.Public().(ed25519.PublicKey))
}

// SignedHeaders carries the five request headers produced for one call.
type SignedHeaders struct {
	DeviceID  string
	Timestamp string
	Nonce     string
	BodyHash  string
	Signature string
}

// Apply sets the signed headers on an outgoing request header map.
func (h SignedHeaders) Apply(header http.Header) {
	header.Set(auth.HeaderDeviceID, h.DeviceID)
	header.Set(auth.HeaderTimestamp, h.Timestamp)
	header.Set(auth.HeaderNonce, h.Nonce)
	header.Set(auth.HeaderBodyHash, h.BodyHash)
	header.Set(auth.HeaderSignature, h.Signature)
}

// SignRequest produces headers binding this device to one method, path
// and body. Each call draws a fresh nonce, so the result is single-use.
func (s *Signer) SignRequest(method, path string, body []byte) SignedHeaders {
	timestamp := strconv.FormatInt(s.TimeNow().UnixMilli(), 10)
	nonce := uuid.NewString()
	bodyHash := auth.BodyDigest(body)

	canonical := auth.CanonicalString(method, path, timestamp, nonce, bodyHash)
	sig := ed25519.Sign(s.priv, []byte(canonical))

	return SignedHeaders{
		DeviceID:  s.DeviceID(),
		Timestamp: timestamp,
		Nonce:     nonce,
		BodyHash:  bodyHash,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
}

// SignPairing signs the pairing proof for a code and returns the base64
// signature alongside the hex public key, the two values the confirm
// endpoint expects.
func (s *Signer) SignPairing(code string) (signature, publicKeyHex string) {
	sig := ed25519.Sign(s.priv, auth.PairingProofMessage(code))
	return base64.StdEncoding.EncodeToString(sig), s.PublicKeyHex()
}
