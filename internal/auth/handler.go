package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	hostErrors "github.com/dexhub/node/internal/errors"
)

// ErrorResponse is the JSON response for error conditions.
type ErrorResponse struct {
	// Error is a machine-readable legacy error code (e.g., "invalid_code").
	Error string `json:"error"`

	// ErrorCode is the stable dotted taxonomy code (e.g., "pair.invalid_code").
	ErrorCode string `json:"error_code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// NextAction is the single primary recovery action for the caller.
	NextAction string `json:"next_action"`
}

// WriteError sends a JSON error response with taxonomy code and next action.
func WriteError(w http.ResponseWriter, status int, legacyCode, taxonomyCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:      legacyCode,
		ErrorCode:  taxonomyCode,
		Message:    message,
		NextAction: hostErrors.GetNextAction(taxonomyCode),
	})
}

// PairRequestHandler handles POST /pair/request. Loopback callers only.
// The generated code is delivered out of band (operator console); the HTTP
// response confirms generation without revealing the code.
type PairRequestHandler struct {
	coordinator *PairingCoordinator
}

// NewPairRequestHandler creates a pair request handler.
func NewPairRequestHandler(pc *PairingCoordinator) *PairRequestHandler {
	return &PairRequestHandler{coordinator: pc}
}

// PairRequestResponse is the JSON response from /pair/request on success.
type PairRequestResponse struct {
	Status string `json:"status"`
}

// ServeHTTP handles POST /pair/request requests.
// Remote access to code generation would let attackers race legitimate
// users to complete a pairing, so only loopback callers are accepted.
func (h *PairRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", hostErrors.CodePairMethodNotAllowed, "Only POST is allowed")
		return
	}

	if _, err := h.coordinator.RequestPairing(r.RemoteAddr); err != nil {
		if errors.Is(err, ErrLocalOnly) {
			WriteError(w, http.StatusForbidden, "local_only", hostErrors.CodeAuthLocalOnly, "Pairing initiation must be local")
			return
		}
		log.Printf("auth: failed to generate pairing code: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", hostErrors.CodePairGenerationFailed, "Failed to generate pairing code")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(PairRequestResponse{Status: "code generated"})
}

// PairConfirmRequest is the JSON body for the /pair/confirm endpoint.
type PairConfirmRequest struct {
	// Code is the 6-digit pairing code delivered to the operator.
	Code string `json:"code"`

	// PublicKey is the device's hex-encoded Ed25519 verification key.
	PublicKey string `json:"public_key"`

	// Signature is the base64 Ed25519 signature over "PAIR:<code>".
	Signature string `json:"signature"`

	// Role is the requested device role. Defaults to "client".
	Role string `json:"role"`
}

// PairConfirmResponse is the JSON response from /pair/confirm on success.
type PairConfirmResponse struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// PairConfirmHandler handles POST /pair/confirm. Callable by anyone; the
// signed proof of possession is what certifies the caller.
type PairConfirmHandler struct {
	coordinator *PairingCoordinator
}

// NewPairConfirmHandler creates a pair confirm handler.
func NewPairConfirmHandler(pc *PairingCoordinator) *PairConfirmHandler {
	return &PairConfirmHandler{coordinator: pc}
}

// ServeHTTP handles POST /pair/confirm requests.
func (h *PairConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", hostErrors.CodePairMethodNotAllowed, "Only POST is allowed")
		return
	}

	var req PairConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("auth: failed to parse pair confirm request: %v", err)
		WriteError(w, http.StatusBadRequest, "invalid_request", hostErrors.CodePairInvalidRequest, "Invalid JSON body")
		return
	}

	// Required-field validation before any business logic.
	if req.Code == "" || req.PublicKey == "" || req.Signature == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", hostErrors.CodePairInvalidRequest, "code, public_key and signature are required")
		return
	}

	deviceID, err := h.coordinator.ConfirmPairing(req.Code, req.PublicKey, req.Signature, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrCodeInvalid):
			WriteError(w, http.StatusForbidden, "invalid_code", hostErrors.CodePairInvalidCode, "Invalid pairing code")
		case errors.Is(err, ErrCodeExpired):
			WriteError(w, http.StatusForbidden, "expired_code", hostErrors.CodePairCodeExpired, "Pairing code has expired")
		case errors.Is(err, ErrProofOfPossession):
			WriteError(w, http.StatusUnauthorized, "proof_failed", hostErrors.CodePairProofFailed, "Proof of possession failed")
		default:
			log.Printf("auth: unexpected error during pairing: %v", err)
			WriteError(w, http.StatusInternalServerError, "internal_error", hostErrors.CodeInternal, "Failed to complete pairing")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(PairConfirmResponse{
		DeviceID: deviceID,
		Status:   "paired",
	})
}

// RevokeRequest is the JSON body for the /admin/devices/revoke endpoint.
type RevokeRequest struct {
	DeviceID string `json:"device_id"`
}

// RevokeResponse is the JSON response from /admin/devices/revoke on success.
type RevokeResponse struct {
	Status string `json:"status"`
}

// RevokeHandler handles POST /admin/devices/revoke. Loopback callers only.
type RevokeHandler struct {
	coordinator *PairingCoordinator
}

// NewRevokeHandler creates a revoke handler.
func NewRevokeHandler(pc *PairingCoordinator) *RevokeHandler {
	return &RevokeHandler{coordinator: pc}
}

// ServeHTTP handles POST /admin/devices/revoke requests.
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", hostErrors.CodePairMethodNotAllowed, "Only POST is allowed")
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", hostErrors.CodePairInvalidRequest, "Invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", hostErrors.CodePairInvalidRequest, "device_id is required")
		return
	}

	if err := h.coordinator.Revoke(req.DeviceID, r.RemoteAddr); err != nil {
		switch {
		case errors.Is(err, ErrLocalOnly):
			WriteError(w, http.StatusForbidden, "local_only", hostErrors.CodeAuthLocalOnly, "Admin actions must be local")
		case errors.Is(err, ErrDeviceNotFound):
			WriteError(w, http.StatusNotFound, "not_found", hostErrors.CodePairDeviceNotFound, "Device not found")
		default:
			log.Printf("auth: unexpected error during revoke: %v", err)
			WriteError(w, http.StatusInternalServerError, "internal_error", hostErrors.CodeInternal, "Failed to revoke device")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(RevokeResponse{Status: "revoked"})
}

// DeviceSummary is one registry entry in the /admin/devices listing.
// The public key is included so operators can cross-check fingerprints.
type DeviceSummary struct {
	DeviceID  string    `json:"device_id"`
	PublicKey string    `json:"public_key"`
	Role      string    `json:"role"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceListResponse is the body of a successful /admin/devices listing.
type DeviceListResponse struct {
	Devices []DeviceSummary `json:"devices"`
}

// ListDevicesHandler handles GET /admin/devices. Loopback callers only.
type ListDevicesHandler struct {
	store DeviceStore
}

// NewListDevicesHandler creates a device listing handler.
func NewListDevicesHandler(store DeviceStore) *ListDevicesHandler {
	return &ListDevicesHandler{store: store}
}

// ServeHTTP handles GET /admin/devices requests.
func (h *ListDevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		WriteError(w, http.StatusForbidden, "local_only", hostErrors.CodeAuthLocalOnly, "Admin actions must be local")
		return
	}

	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", hostErrors.CodePairMethodNotAllowed, "Only GET is allowed")
		return
	}

	devices, err := h.store.ListDevices()
	if err != nil {
		log.Printf("auth: failed to list devices: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", hostErrors.CodeStorageQueryFailed, "Failed to list devices")
		return
	}

	resp := DeviceListResponse{
		Devices: make([]DeviceSummary, 0, len(devices)),
	}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, DeviceSummary{
			DeviceID:  d.ID,
			PublicKey: d.PublicKey,
			Role:      d.Role,
			Enabled:   d.Enabled,
			CreatedAt: d.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
