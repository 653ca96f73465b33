// Package server exposes the node's HTTP API: the speech endpoints gated
// by request signatures, the pairing handshake, and the loopback-only
// admin surface. Every protected route runs through the authenticator
// before its handler sees the request.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dexhub/node/internal/auth"
	"github.com/dexhub/node/internal/speech"
)

// maxAudioBytes caps the /stt request body. A minute of 16kHz 16-bit
// mono audio is under 2MB, so this is generous.
const maxAudioBytes = 32 << 20

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// defaultSweepInterval is how often abandoned pairing codes are purged.
const defaultSweepInterval = time.Minute

// Config holds the collaborators the server routes requests to.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string

	// Authenticator verifies signed requests on protected routes.
	Authenticator *auth.Authenticator

	// Pairing runs the pairing handshake and revocation.
	Pairing *auth.PairingCoordinator

	// Store lists registered devices for the admin surface.
	Store auth.DeviceStore

	// Transcriber backs POST /stt and the streaming endpoint.
	Transcriber speech.Transcriber

	// Synthesizer backs POST /tts.
	Synthesizer speech.Synthesizer

	// SweepInterval is how often expired pairing codes are purged.
	// Zero means once a minute.
	SweepInterval time.Duration

	// TimeNow returns the current time. Tests replace it.
	TimeNow func() time.Time
}

// Server is the node's HTTP front end.
type Server struct {
	addr          string
	authenticator *auth.Authenticator
	pairing       *auth.PairingCoordinator
	store         auth.DeviceStore
	transcriber   speech.Transcriber
	synthesizer   speech.Synthesizer
	sweepInterval time.Duration
	timeNow       func() time.Time

	// upgrader converts HTTP connections to WebSocket connections for
	// the streaming recognition endpoint.
	upgrader websocket.Upgrader

	httpServer *http.Server

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New creates a server from its collaborators.
func New(cfg Config) *Server {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.TimeNow == nil {
		cfg.TimeNow = time.Now
	}
	return &Server{
		addr:          cfg.Addr,
		authenticator: cfg.Authenticator,
		pairing:       cfg.Pairing,
		store:         cfg.Store,
		transcriber:   cfg.Transcriber,
		synthesizer:   cfg.Synthesizer,
		sweepInterval: cfg.SweepInterval,
		timeNow:       cfg.TimeNow,
		upgrader: websocket.Upgrader{
			// Signed headers, not the Origin header, are the trust check
			// for the streaming endpoint.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		stopCh: make(chan struct{}),
	}
}
