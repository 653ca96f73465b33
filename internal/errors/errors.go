// Package errors provides standardized error codes for the trusted node.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (auth, pair, storage, speech)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by paired clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients can rely on for error handling.
const (
	// Auth domain - request authentication failures
	CodeAuthMissingCredentials = "auth.missing_credentials" // One or more signed headers absent
	CodeAuthRequestExpired     = "auth.request_expired"     // Timestamp outside the freshness window
	CodeAuthNonceReplay        = "auth.nonce_replay"        // Nonce already seen for this device
	CodeAuthDeviceUnauthorized = "auth.device_unauthorized" // Device unknown or disabled
	CodeAuthRateLimited        = "auth.rate_limited"        // Token bucket empty for this endpoint class
	CodeAuthBodyIntegrity      = "auth.body_integrity"      // Body digest does not match the claimed hash
	CodeAuthSignatureInvalid   = "auth.signature_invalid"   // Signature does not verify over the canonical string
	CodeAuthLocalOnly          = "auth.local_only"          // Loopback-only endpoint called remotely

	// Pair domain - pairing bootstrap failures
	CodePairInvalidCode      = "pair.invalid_code"       // Unknown pairing code
	CodePairCodeExpired      = "pair.code_expired"       // Pairing code older than its lifetime
	CodePairProofFailed      = "pair.proof_failed"       // Proof-of-possession signature invalid
	CodePairInvalidRequest   = "pair.invalid_request"    // Malformed pairing payload
	CodePairGenerationFailed = "pair.generation_failed"  // Could not generate a pairing code
	CodePairDeviceNotFound   = "pair.device_not_found"   // Revoke target does not exist
	CodePairMethodNotAllowed = "pair.method_not_allowed" // Wrong HTTP method on a pairing endpoint

	// Storage domain - device registry persistence errors
	CodeStorageOpenFailed  = "storage.open_failed"  // Registry database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Registry query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to persist a device record

	// Speech domain - boundary engine errors
	CodeSpeechTranscribeFailed = "speech.transcribe_failed" // STT engine failed
	CodeSpeechSynthesisFailed  = "speech.synthesis_failed"  // TTS engine failed
	CodeSpeechEmptyText        = "speech.empty_text"        // Synthesis request without text
	CodeSpeechBadFrame         = "speech.bad_frame"         // Streaming frame is not binary audio

	// General domain - catch-all errors
	CodeUnknown          = "error.unknown"            // Unknown error
	CodeInternal         = "error.internal"           // Internal server error
	CodeMethodNotAllowed = "error.method_not_allowed" // Wrong HTTP method for this endpoint
	CodeBodyTooLarge     = "error.body_too_large"     // Request body exceeds the endpoint limit
)

// nextActions maps error codes to the single primary recovery action
// a client or operator should take. Codes without an entry fall back
// to a generic hint.
var nextActions = map[string]string{
	CodeAuthMissingCredentials: "Send all five X-DEX-* headers on protected endpoints.",
	CodeAuthRequestExpired:     "Check the device clock and resend with a fresh timestamp.",
	CodeAuthNonceReplay:        "Generate a new nonce and re-sign the request.",
	CodeAuthDeviceUnauthorized: "Pair this device again or ask the operator to re-enable it.",
	CodeAuthRateLimited:        "Wait for the bucket to refill before retrying.",
	CodeAuthBodyIntegrity:      "Recompute the body SHA-256 over the exact bytes sent.",
	CodeAuthSignatureInvalid:   "Re-sign the canonical string with the paired device key.",
	CodeAuthLocalOnly:          "Run this operation from the node itself.",
	CodePairInvalidCode:        "Request a new pairing code on the node.",
	CodePairCodeExpired:        "Request a new pairing code; codes last 5 minutes.",
	CodePairProofFailed:        "Sign PAIR:<code> with the private key matching the submitted public key.",
	CodePairDeviceNotFound:     "Run 'dexhub devices list' to find the device ID.",
}

// GetNextAction returns the recovery hint for an error code.
func GetNextAction(code string) string {
	if action, ok := nextActions[code]; ok {
		return action
	}
	return "Check the node logs for details."
}

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.nonce_replay")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
