package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// deviceIDLength is the number of hex characters kept from the SHA-256
// digest of the public key. 12 hex chars = 48 bits, enough to avoid
// collisions for a personal fleet while staying readable.
const deviceIDLength = 12

// CanonicalString builds the exact byte sequence a request signature covers:
// method, path, timestamp, nonce and body digest, newline-joined.
// Any change to this layout invalidates every paired client.
func CanonicalString(method, path, timestamp, nonce, bodyHash string) string {
	return strings.Join([]string{method, path, timestamp, nonce, bodyHash}, "\n")
}

// VerifySignature reports whether sigB64 is a valid Ed25519 signature over
// message by the raw public key bytes. Malformed keys or signatures simply
// fail verification.
func VerifySignature(publicKey, message []byte, sigB64 string) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), message, sig)
}

// VerifyHexKeySignature is VerifySignature for a hex-encoded public key.
func VerifyHexKeySignature(publicKeyHex string, message []byte, sigB64 string) bool {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	return VerifySignature(raw, message, sigB64)
}

// DeviceIDFromPublicKey derives the device identifier from the raw public
// key bytes: the first 12 hex characters of its SHA-256 digest. Pairing the
// same key always yields the same ID.
func DeviceIDFromPublicKey(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:])[:deviceIDLength]
}

// BodyDigest returns the lowercase hex SHA-256 of the request body.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// IsLoopbackAddr checks if a remote address originates from the local
// machine. This gates sensitive operations like pairing-code generation and
// device revocation. Returns true for loopback or unix socket addresses.
func IsLoopbackAddr(remoteAddr string) bool {
	// Extract the host part (format is "host:port" or "[host]:port" for IPv6)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		if isUnixSocketRemoteAddr(remoteAddr) {
			return true
		}
		// If we can't parse the address, be conservative and reject
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback()
}

func isUnixSocketRemoteAddr(remoteAddr string) bool {
	if remoteAddr == "" {
		return true
	}
	if strings.HasPrefix(remoteAddr, "/") || strings.HasPrefix(remoteAddr, "@") {
		return true
	}
	return false
}

// isLoopbackRequest applies IsLoopbackAddr to an HTTP request.
func isLoopbackRequest(r *http.Request) bool {
	return IsLoopbackAddr(r.RemoteAddr)
}
