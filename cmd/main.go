package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `dexhub - personal voice assistant node

Usage:
  dexhub <command> [options]

Commands:
  serve         Run the node (speech API + pairing + device registry)
  pair          Open a pairing window for a new device
  enroll        Enroll this machine as a device (confirm a pairing code)
  devices list  List paired devices
  devices revoke <device-id>  Disable a paired device
  discover      Browse the local network for running nodes
  version       Print the version

Run 'dexhub <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "pair":
		return runPair(args[2:], stdout, stderr)
	case "enroll":
		return runEnroll(args[2:], stdout, stderr)
	case "devices":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: dexhub devices <list|revoke>")
			return 1
		}
		switch args[2] {
		case "list":
			return runDevicesList(args[3:], stdout, stderr)
		case "revoke":
			return runDevicesRevoke(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown devices command: %s\n", args[2])
			return 1
		}
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "dexhub %s\n", Version)
		return 0
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
