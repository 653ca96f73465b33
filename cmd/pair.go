package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/dexhub/node/internal/auth"
)

// PairConfig holds configuration for the pair command.
type PairConfig struct {
	Addr string // Node address for display/QR (default: LAN IP:5000)
	Port int    // Local API port the node listens on
	QR   bool   // Display pairing info as QR code
}

func runPair(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &PairConfig{}
	fs.StringVar(&cfg.Addr, "addr", "", "Node address to show the device (default: LAN IP:<port>)")
	fs.IntVar(&cfg.Port, "port", 5000, "Local node API port")
	fs.BoolVar(&cfg.QR, "qr", false, "Display node address as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub pair [options]\n\nOpen a pairing window for a new device.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nThe pairing code appears on the serve console, is valid for 5 minutes\nand can only be used once. Enter it on the device along with the node\naddress shown here.\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// The device needs a LAN-reachable address; code generation itself
	// always goes through loopback since the node restricts it.
	displayAddr := cfg.Addr
	if displayAddr == "" {
		if ip := GetPreferredOutboundIP(); ip != "" {
			displayAddr = fmt.Sprintf("%s:%d", ip, cfg.Port)
		} else {
			fmt.Fprintf(stderr, "Warning: could not detect network IP, using localhost\n")
			displayAddr = fmt.Sprintf("127.0.0.1:%d", cfg.Port)
		}
	}

	if err := requestPairing(fmt.Sprintf("127.0.0.1:%d", cfg.Port)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "\nThe node must be running to open a pairing window.\n")
		fmt.Fprintf(stderr, "Start it with: dexhub serve\n")
		return 1
	}

	if cfg.QR {
		DisplayPairQR(stdout, displayAddr)
	} else {
		DisplayPairInstructions(stdout, displayAddr)
	}
	return 0
}

// requestPairing asks the running node to open a pairing window. The
// code itself is printed on the serve console, never returned here.
func requestPairing(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	res, err := client.Post(fmt.Sprintf("http://%s/pair/request", addr), "application/json", nil)
	if err != nil {
		return fmt.Errorf("could not reach node at %s: %w", addr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var er auth.ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&er); err == nil && er.Message != "" {
			return fmt.Errorf("node refused pairing request: %s", er.Message)
		}
		return fmt.Errorf("node refused pairing request (status %d)", res.StatusCode)
	}
	return nil
}

// DisplayPairInstructions prints the pairing steps in plain text.
func DisplayPairInstructions(w io.Writer, addr string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         PAIRING WINDOW OPEN")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Node address: %s\n", addr)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  1. Read the 6-digit code from the serve console")
	fmt.Fprintln(w, "  2. Enter the address and code on the device")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  The code expires in 5 minutes and works once.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayPairQR prints the node address as a scannable QR code so the
// device only has to type the code.
func DisplayPairQR(w io.Writer, addr string) {
	payload := fmt.Sprintf("dexhub://pair?host=%s", url.QueryEscape(addr))

	// Medium error correction keeps the code small enough for a terminal.
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayPairInstructions(w, addr)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  Node address: %s\n", addr)
	fmt.Fprintln(w, "  Enter the code from the serve console.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// GetPreferredOutboundIP returns the local IP the OS would route LAN
// traffic through, or empty if none is available.
func GetPreferredOutboundIP() string {
	// Dial UDP to a public IP. No packets are actually sent for UDP;
	// this just asks the OS which local interface it would use.
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
