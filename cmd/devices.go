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
)

func runDevicesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "127.0.0.1:5000", "Node address")
	asJSON := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub devices list [options]\n\nList paired devices.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	res, err := client.Get(fmt.Sprintf("http://%s/admin/devices", *addr))
	if err != nil {
		fmt.Fprintf(stderr, "Error: could not reach node at %s: %v\n", *addr, err)
		fmt.Fprintf(stderr, "\nThe node must be running. Start it with: dexhub serve\n")
		return 1
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Error: node returned status %d\n", res.StatusCode)
		return 1
	}

	var list auth.DeviceListResponse
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		fmt.Fprintf(stderr, "Error: malformed device list: %v\n", err)
		return 1
	}
	devices := list.Devices

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(devices)
		return 0
	}

	if len(devices) == 0 {
		fmt.Fprintln(stdout, "No paired devices.")
		return 0
	}

	fmt.Fprintf(stdout, "%-14s %-8s %-9s %s\n", "DEVICE", "ROLE", "STATUS", "PAIRED")
	for _, d := range devices {
		status := "enabled"
		if !d.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(stdout, "%-14s %-8s %-9s %s\n",
			d.DeviceID, d.Role, status, d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return 0
}

func runDevicesRevoke(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "127.0.0.1:5000", "Node address")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub devices revoke <device-id> [options]\n\nDisable a paired device. The record stays in the registry for audit.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: device ID is required")
		fs.Usage()
		return 1
	}
	deviceID := fs.Arg(0)

	payload, _ := json.Marshal(auth.RevokeRequest{DeviceID: deviceID})
	client := &http.Client{Timeout: 5 * time.Second}
	res, err := client.Post(fmt.Sprintf("http://%s/admin/devices/revoke", *addr), "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(stderr, "Error: could not reach node at %s: %v\n", *addr, err)
		return 1
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		fmt.Fprintf(stdout, "Device %s revoked.\n", deviceID)
		return 0
	case http.StatusNotFound:
		fmt.Fprintf(stderr, "Error: device %s not found\n", deviceID)
		return 1
	default:
		var er auth.ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&er); err == nil && er.Message != "" {
			fmt.Fprintf(stderr, "Error: %s\n", er.Message)
		} else {
			fmt.Fprintf(stderr, "Error: node returned status %d\n", res.StatusCode)
		}
		return 1
	}
}
