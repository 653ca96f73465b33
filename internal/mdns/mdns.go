// Package mdns provides optional mDNS/Bonjour service advertisement.
//
// When enabled, the node advertises itself on the local network using
// DNS-SD so devices can discover it without manual IP entry. This is an
// opt-in feature; discovery only reveals presence, and pairing still
// requires a code and key proof.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for dexhub nodes, following the
// Bonjour _<service>._<protocol> convention.
const ServiceType = "_dexhub._tcp"

// ProtocolVersion identifies the advertised protocol version so clients
// can check compatibility before pairing.
const ProtocolVersion = "1"

// AuthScheme names the request authentication scheme in TXT records so
// clients know which signing protocol to speak.
const AuthScheme = "ed25519"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the API port to advertise (e.g., 5000).
	Port int

	// Name is a human-readable name for this node. Defaults to the
	// system hostname if empty.
	Name string
}

// Advertiser manages mDNS/DNS-SD service registration for a node.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates an mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start begins advertising the service via mDNS. It is safe to call
// multiple times; subsequent calls are no-ops if already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "dexhub"
		} else {
			name = hostname
		}
	}

	// TXT records tell clients what they are talking to before they
	// connect: protocol version, signing scheme, and display name.
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("auth=%s", AuthScheme),
		fmt.Sprintf("name=%s", name),
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords,
		nil, // all network interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the advertisement and unregisters the service. Safe to call
// multiple times or on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the advertiser is currently registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredNode is a node found via mDNS browsing.
type DiscoveredNode struct {
	// Name is the human-readable node name.
	Name string

	// Host is the IP address or hostname.
	Host string

	// Port is the API port.
	Port int

	// Version is the advertised protocol version.
	Version string

	// Auth is the advertised signing scheme.
	Auth string
}

// Discover browses the local network for dexhub nodes until the context
// expires and returns everything found. The CLI uses this so users can
// pair without typing an address.
func Discover(ctx context.Context) ([]DiscoveredNode, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		nodes []DiscoveredNode
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			node := DiscoveredNode{
				Name: entry.Instance,
				Port: entry.Port,
			}

			// Prefer IPv4 addresses; most home networks only route those.
			if len(entry.AddrIPv4) > 0 {
				node.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				node.Host = entry.AddrIPv6[0].String()
			}

			for _, txt := range entry.Text {
				switch {
				case strings.HasPrefix(txt, "version="):
					node.Version = strings.TrimPrefix(txt, "version=")
				case strings.HasPrefix(txt, "auth="):
					node.Auth = strings.TrimPrefix(txt, "auth=")
				case strings.HasPrefix(txt, "name="):
					node.Name = strings.TrimPrefix(txt, "name=")
				}
			}

			mu.Lock()
			nodes = append(nodes, node)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// zeroconf closes the entries channel once the context is done.
	<-ctx.Done()
	wg.Wait()

	return nodes, nil
}
