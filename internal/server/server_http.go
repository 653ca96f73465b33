package server

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/dexhub/node/internal/auth"
	hostErrors "github.com/dexhub/node/internal/errors"
)

// signedHandler receives a request whose signature already verified,
// along with the body bytes the digest was checked against.
type signedHandler func(w http.ResponseWriter, r *http.Request, body []byte, deviceID string)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint for monitoring. Unauthenticated; it reveals
	// nothing beyond liveness.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Pairing endpoints. Request is loopback-only; confirm is open since
	// the code plus key proof is the trust check.
	mux.Handle("/pair/request", auth.NewPairRequestHandler(s.pairing))
	mux.Handle("/pair/confirm", auth.NewPairConfirmHandler(s.pairing))

	// Admin surface, loopback-only. The CLI talks to these.
	mux.Handle("/admin/devices/revoke", auth.NewRevokeHandler(s.pairing))
	mux.Handle("/admin/devices", auth.NewListDevicesHandler(s.store))

	// Speech endpoints, signature-gated.
	mux.HandleFunc("/stt", s.requireSignature(maxAudioBytes, s.handleSTT))
	mux.HandleFunc("/stt/stream", s.handleSTTStream)
	mux.HandleFunc("/tts", s.requireSignature(maxJSONBytes, s.handleTTS))

	return mux
}

// requireSignature wraps a handler with request authentication. The body
// is read up front since the signature covers its digest.
func (s *Server) requireSignature(maxBody int64, next signedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			auth.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				hostErrors.CodeBodyTooLarge, "request body too large")
			return
		}

		creds := auth.CredentialsFromHeader(r.Header)
		if err := s.authenticator.Verify(r.Method, r.URL.Path, creds, body, r.RemoteAddr); err != nil {
			writeAuthError(w, r, err)
			return
		}

		next(w, r, body, creds.DeviceID)
	}
}

// writeAuthError maps authenticator rejections onto HTTP statuses.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("auth: rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)

	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		auth.WriteError(w, http.StatusUnauthorized, "missing_credentials",
			hostErrors.CodeAuthMissingCredentials, "missing or malformed auth headers")
	case errors.Is(err, auth.ErrRequestExpired):
		auth.WriteError(w, http.StatusUnauthorized, "request_expired",
			hostErrors.CodeAuthRequestExpired, "request timestamp outside freshness window")
	case errors.Is(err, auth.ErrNonceReplay):
		auth.WriteError(w, http.StatusConflict, "nonce_replay",
			hostErrors.CodeAuthNonceReplay, "nonce already used")
	case errors.Is(err, auth.ErrDeviceUnauthorized):
		auth.WriteError(w, http.StatusForbidden, "device_unauthorized",
			hostErrors.CodeAuthDeviceUnauthorized, "device unknown or disabled")
	case errors.Is(err, auth.ErrRateLimited):
		auth.WriteError(w, http.StatusTooManyRequests, "rate_limited",
			hostErrors.CodeAuthRateLimited, "rate limit exceeded")
	case errors.Is(err, auth.ErrBodyIntegrity):
		auth.WriteError(w, http.StatusBadRequest, "body_integrity",
			hostErrors.CodeAuthBodyIntegrity, "body digest mismatch")
	case errors.Is(err, auth.ErrSignatureInvalid):
		auth.WriteError(w, http.StatusUnauthorized, "invalid_signature",
			hostErrors.CodeAuthSignatureInvalid, "invalid request signature")
	default:
		auth.WriteError(w, http.StatusInternalServerError, "internal_error",
			hostErrors.CodeInternal, "authentication check failed")
	}
}
