package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/dexhub/node/internal/auth"
	"github.com/dexhub/node/internal/config"
	"github.com/dexhub/node/internal/mdns"
	"github.com/dexhub/node/internal/server"
	"github.com/dexhub/node/internal/speech"
	"github.com/dexhub/node/internal/storage"
)

// ServeConfig holds CLI overrides for the serve command. Flags take
// precedence over the config file.
type ServeConfig struct {
	ConfigPath string
	Addr       string
	Registry   string
	TTSMode    string
	Mdns       bool
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ServeConfig{}
	fs.StringVar(&cfg.ConfigPath, "config", "", "Path to config file (default: ~/.dexhub/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address (overrides config)")
	fs.StringVar(&cfg.Registry, "registry", "", "Device registry path (overrides config)")
	fs.StringVar(&cfg.TTSMode, "tts-mode", "", "Synthesis backend: local or cloud (overrides config)")
	fs.BoolVar(&cfg.Mdns, "mdns", false, "Advertise the node via mDNS (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dexhub serve [options]\n\nRun the node: speech API, pairing, device registry.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	fileCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Addr != "" {
		fileCfg.Addr = cfg.Addr
	}
	if cfg.Registry != "" {
		fileCfg.Registry = cfg.Registry
	}
	if cfg.TTSMode != "" {
		fileCfg.TTSMode = cfg.TTSMode
	}
	if cfg.Mdns {
		fileCfg.MdnsEnabled = true
	}

	registryPath := fileCfg.Registry
	if registryPath == "" {
		registryPath, err = config.DefaultRegistryPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	store, err := storage.NewSQLiteStore(registryPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device registry: %v\n", err)
		return 1
	}
	defer store.Close()

	synthesizer, err := buildSynthesizer(fileCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	pairing := auth.NewPairingCoordinator(auth.PairingConfig{
		CodeExpiry: time.Duration(fileCfg.PairCodeExpirySecs) * time.Second,
		Store:      store,
		Delivery:   auth.ConsoleDelivery{Out: stdout},
	})

	authenticator := auth.NewAuthenticator(auth.AuthenticatorConfig{
		Store: store,
		Limiter: auth.NewRateLimiter(map[auth.EndpointClass]auth.ClassLimit{
			auth.ClassRecognition: {
				Capacity: fileCfg.RecognitionCapacity,
				Refill:   rate.Limit(fileCfg.RecognitionPerMinute / 60.0),
			},
			auth.ClassDefault: {
				Capacity: fileCfg.DefaultCapacity,
				Refill:   rate.Limit(fileCfg.DefaultPerMinute / 60.0),
			},
		}),
		ClassifyEndpoint: func(path string) auth.EndpointClass {
			if strings.HasPrefix(path, "/stt") {
				return auth.ClassRecognition
			}
			return auth.ClassDefault
		},
	})

	srv := server.New(server.Config{
		Addr:          fileCfg.Addr,
		Authenticator: authenticator,
		Pairing:       pairing,
		Store:         store,
		Transcriber:   &speech.CommandTranscriber{Command: fileCfg.STTCommand},
		Synthesizer:   synthesizer,
	})

	if fileCfg.MdnsEnabled {
		port := listenPort(fileCfg.Addr)
		advertiser := mdns.NewAdvertiser(mdns.Config{Port: port})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			defer advertiser.Stop()
			fmt.Fprintf(stdout, "Advertising %s on port %d via mDNS\n", mdns.ServiceType, port)
		}
	}

	// Shut down cleanly on Ctrl-C or SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(stdout, "Shutting down...")
		srv.Stop()
	}()

	fmt.Fprintf(stdout, "dexhub %s listening on %s\n", Version, fileCfg.Addr)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// buildSynthesizer picks the synthesis backend from config.
func buildSynthesizer(cfg *config.Config) (speech.Synthesizer, error) {
	switch cfg.TTSMode {
	case "local":
		return &speech.CommandSynthesizer{Command: cfg.TTSCommand}, nil
	case "cloud":
		if cfg.CloudTTSURL == "" {
			return nil, errors.New("tts_mode is cloud but cloud_tts_url is not set")
		}
		return &speech.CloudSynthesizer{
			URL:    cfg.CloudTTSURL,
			APIKey: os.Getenv(cfg.CloudTTSKeyEnv),
		}, nil
	default:
		return nil, fmt.Errorf("unknown tts_mode %q (want local or cloud)", cfg.TTSMode)
	}
}

// listenPort extracts the port from a host:port address, defaulting to
// 5000 when it cannot be parsed.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 5000
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 5000
	}
	return port
}
