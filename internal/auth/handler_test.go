package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newHandlerFixture wires a coordinator with a recording delivery channel.
func newHandlerFixture(t *testing.T) (*PairingCoordinator, *mockDeviceStore, *recordingDelivery, *time.Time) {
	t.Helper()

	store := newMockDeviceStore()
	delivery := &recordingDelivery{}
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	pc := testCoordinator(store, delivery, &now)
	return pc, store, delivery, &now
}

func postJSON(t *testing.T, handler http.Handler, path, remoteAddr string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestPairRequestHandlerLoopback(t *testing.T) {
	pc, _, delivery, _ := newHandlerFixture(t)
	handler := NewPairRequestHandler(pc)

	rec := postJSON(t, handler, "/pair/request", loopback, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	// The response confirms generation but never contains the code.
	if code := delivery.last(); code == "" {
		t.Error("expected a code to be delivered out of band")
	} else if bytes.Contains(rec.Body.Bytes(), []byte(code)) {
		t.Error("pairing code must not appear in the HTTP response")
	}
}

func TestPairRequestHandlerRemoteForbidden(t *testing.T) {
	pc, _, _, _ := newHandlerFixture(t)
	handler := NewPairRequestHandler(pc)

	rec := postJSON(t, handler, "/pair/request", remote, struct{}{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	resp := decodeError(t, rec)
	if resp.ErrorCode != "auth.local_only" {
		t.Errorf("error_code = %q, want auth.local_only", resp.ErrorCode)
	}
}

func TestPairRequestHandlerMethodNotAllowed(t *testing.T) {
	pc, _, _, _ := newHandlerFixture(t)
	handler := NewPairRequestHandler(pc)

	req := httptest.NewRequest(http.MethodGet, "/pair/request", nil)
	req.RemoteAddr = loopback
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestPairConfirmHandlerHappyPath(t *testing.T) {
	pc, store, delivery, _ := newHandlerFixture(t)
	confirm := NewPairConfirmHandler(pc)

	if _, err := pc.RequestPairing(loopback); err != nil {
		t.Fatalf("RequestPairing failed: %v", err)
	}
	code := delivery.last()

	pubHex, priv := generateTestKey(t)
	rec := postJSON(t, confirm, "/pair/confirm", remote, PairConfirmRequest{
		Code:      code,
		PublicKey: pubHex,
		Signature: signB64(priv, PairingProofMessage(code)),
		Role:      "client",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp PairConfirmResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "paired" {
		t.Errorf("status = %q, want paired", resp.Status)
	}

	device, _ := store.GetDevice(resp.DeviceID)
	if device == nil || !device.Enabled {
		t.Error("expected an enabled device record after confirm")
	}
}

func TestPairConfirmHandlerErrors(t *testing.T) {
	pc, _, delivery, now := newHandlerFixture(t)
	confirm := NewPairConfirmHandler(pc)

	pc.RequestPairing(loopback)
	code := delivery.last()
	pubHex, priv := generateTestKey(t)

	tests := []struct {
		name       string
		req        PairConfirmRequest
		advance    time.Duration
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing fields",
			req:        PairConfirmRequest{Code: code},
			wantStatus: http.StatusBadRequest,
			wantCode:   "pair.invalid_request",
		},
		{
			name: "unknown code",
			req: PairConfirmRequest{
				Code:      "000000",
				PublicKey: pubHex,
				Signature: signB64(priv, PairingProofMessage("000000")),
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "pair.invalid_code",
		},
		{
			name: "bad proof",
			req: PairConfirmRequest{
				Code:      code,
				PublicKey: pubHex,
				Signature: signB64(priv, []byte("PAIR:999999")),
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "pair.proof_failed",
		},
		{
			name: "expired code",
			req: PairConfirmRequest{
				Code:      code,
				PublicKey: pubHex,
				Signature: signB64(priv, PairingProofMessage(code)),
			},
			advance:    301 * time.Second,
			wantStatus: http.StatusForbidden,
			wantCode:   "pair.code_expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.advance != 0 {
				*now = now.Add(tt.advance)
			}

			rec := postJSON(t, confirm, "/pair/confirm", remote, tt.req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeError(t, rec); resp.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", resp.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestRevokeHandler(t *testing.T) {
	pc, store, delivery, _ := newHandlerFixture(t)
	revoke := NewRevokeHandler(pc)

	pc.RequestPairing(loopback)
	code := delivery.last()
	pubHex, priv := generateTestKey(t)
	deviceID, err := pc.ConfirmPairing(code, pubHex, signB64(priv, PairingProofMessage(code)), "")
	if err != nil {
		t.Fatalf("pairing failed: %v", err)
	}

	// Remote revocation is forbidden.
	rec := postJSON(t, revoke, "/admin/devices/revoke", remote, RevokeRequest{DeviceID: deviceID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote revoke status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	// Loopback revocation disables the device.
	rec = postJSON(t, revoke, "/admin/devices/revoke", loopback, RevokeRequest{DeviceID: deviceID})
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, want %d", rec.Code, http.StatusOK)
	}

	device, _ := store.GetDevice(deviceID)
	if device.Enabled {
		t.Error("device should be disabled after revoke")
	}

	// Unknown device reports not found.
	rec = postJSON(t, revoke, "/admin/devices/revoke", loopback, RevokeRequest{DeviceID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListDevicesHandler(t *testing.T) {
	pc, store, delivery, _ := newHandlerFixture(t)
	list := NewListDevicesHandler(store)

	pc.RequestPairing(loopback)
	code := delivery.last()
	pubHex, priv := generateTestKey(t)
	deviceID, err := pc.ConfirmPairing(code, pubHex, signB64(priv, PairingProofMessage(code)), "")
	if err != nil {
		t.Fatalf("pairing failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/devices", nil)
	req.RemoteAddr = loopback
	rec := httptest.NewRecorder()
	list.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp DeviceListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Devices) != 1 || resp.Devices[0].DeviceID != deviceID {
		t.Errorf("unexpected device list: %+v", resp.Devices)
	}

	// Remote listing is forbidden.
	req = httptest.NewRequest(http.MethodGet, "/admin/devices", nil)
	req.RemoteAddr = remote
	rec = httptest.NewRecorder()
	list.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote list status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
