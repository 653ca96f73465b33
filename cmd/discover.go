package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dexhub/node/internal/mdns"
)

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub discover [options]\n\nBrowse the local network for running nodes via mDNS.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	fmt.Fprintf(stdout, "Browsing for %s (%s)...\n", mdns.ServiceType, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	nodes, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(nodes) == 0 {
		fmt.Fprintln(stdout, "No nodes found. Nodes only advertise when started with --mdns.")
		return 0
	}

	fmt.Fprintf(stdout, "%-20s %-22s %-8s %s\n", "NAME", "ADDRESS", "VERSION", "AUTH")
	for _, n := range nodes {
		fmt.Fprintf(stdout, "%-20s %-22s %-8s %s\n",
			n.Name, fmt.Sprintf("%s:%d", n.Host, n.Port), n.Version, n.Auth)
	}
	return 0
}
