package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dexhub/node/internal/client"
)

func TestEnrollAgainstNode(t *testing.T) {
	addr, pc, delivery := newPairTestServer(t)

	if err := requestPairing(addr); err != nil {
		t.Fatalf("requestPairing failed: %v", err)
	}
	if len(delivery.codes) != 1 {
		t.Fatalf("delivered codes = %d, want 1", len(delivery.codes))
	}
	code := delivery.codes[0]

	keyPath := filepath.Join(t.TempDir(), "device_key")
	var stdout, stderr bytes.Buffer
	exit := runEnroll([]string{"--addr", addr, "--code", code, "--key", keyPath}, &stdout, &stderr)
	if exit != 0 {
		t.Fatalf("enroll exit = %d, stderr = %q", exit, stderr.String())
	}

	signer, err := client.LoadOrCreateSigner(keyPath)
	if err != nil {
		t.Fatalf("reload signer: %v", err)
	}
	if !strings.Contains(stdout.String(), signer.DeviceID()) {
		t.Errorf("device ID missing from output: %q", stdout.String())
	}
	if pc.PendingCount() != 0 {
		t.Errorf("pairing code not consumed, pending = %d", pc.PendingCount())
	}
}

func TestEnrollWrongCode(t *testing.T) {
	addr, _, _ := newPairTestServer(t)

	keyPath := filepath.Join(t.TempDir(), "device_key")
	var stdout, stderr bytes.Buffer
	exit := runEnroll([]string{"--addr", addr, "--code", "000000", "--key", keyPath}, &stdout, &stderr)
	if exit != 1 {
		t.Fatalf("enroll exit = %d, want 1", exit)
	}
	if !strings.Contains(stderr.String(), "rejected") {
		t.Errorf("expected rejection message, got %q", stderr.String())
	}
}

func TestEnrollRequiresCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exit := runEnroll(nil, &stdout, &stderr)
	if exit != 1 {
		t.Fatalf("enroll exit = %d, want 1", exit)
	}
	if !strings.Contains(stderr.String(), "--code is required") {
		t.Errorf("expected missing-code error, got %q", stderr.String())
	}
}
