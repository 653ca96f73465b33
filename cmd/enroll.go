package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dexhub/node/internal/auth"
	"github.com/dexhub/node/internal/client"
)

// EnrollConfig holds configuration for the enroll command.
type EnrollConfig struct {
	Addr    string
	Code    string
	KeyPath string
	Role    string
}

// runEnroll confirms a pairing code from the device side: it loads (or
// creates) this machine's keypair, signs the proof of possession, and
// registers with the node. Useful for scripting and for a second
// computer acting as a device.
func runEnroll(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("enroll", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &EnrollConfig{}
	fs.StringVar(&cfg.Addr, "addr", "127.0.0.1:5000", "Node address")
	fs.StringVar(&cfg.Code, "code", "", "Pairing code from the node console (required)")
	fs.StringVar(&cfg.KeyPath, "key", "", "Device key file (default: ~/.dexhub/device_key)")
	fs.StringVar(&cfg.Role, "role", "", "Requested role: client or admin (default: client)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub enroll --code <code> [options]\n\nEnroll this machine as a paired device.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if cfg.Code == "" {
		fmt.Fprintln(stderr, "Error: --code is required")
		fs.Usage()
		return 1
	}

	keyPath := cfg.KeyPath
	if keyPath == "" {
		var err error
		keyPath, err = client.DefaultKeyPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	signer, err := client.LoadOrCreateSigner(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	deviceID, err := confirmPairing(cfg.Addr, cfg.Code, cfg.Role, signer)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Enrolled as device %s\n", deviceID)
	fmt.Fprintf(stdout, "Key file: %s\n", keyPath)
	return 0
}

// confirmPairing runs the confirm half of the handshake against a node.
func confirmPairing(addr, code, role string, signer *client.Signer) (string, error) {
	sig, pubHex := signer.SignPairing(code)

	payload, err := json.Marshal(auth.PairConfirmRequest{
		Code:      code,
		PublicKey: pubHex,
		Signature: sig,
		Role:      role,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode confirm request: %w", err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	res, err := httpClient.Post(fmt.Sprintf("http://%s/pair/confirm", addr), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("could not reach node at %s: %w", addr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var er auth.ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&er); err == nil && er.Message != "" {
			return "", fmt.Errorf("pairing rejected: %s", er.Message)
		}
		return "", fmt.Errorf("pairing rejected (status %d)", res.StatusCode)
	}

	var confirm auth.PairConfirmResponse
	if err := json.NewDecoder(res.Body).Decode(&confirm); err != nil {
		return "", fmt.Errorf("malformed confirm response: %w", err)
	}
	return confirm.DeviceID, nil
}
