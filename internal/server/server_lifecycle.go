package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// Start begins serving the HTTP API. It blocks until the server is
// stopped, returning http.ErrServerClosed on graceful shutdown. For
// non-blocking startup with error handling, use StartAsync.
func (s *Server) Start() error {
	mux := s.createMux()

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runSweeper()

	log.Printf("server: listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine. The returned channel
// receives nil once the listener is accepting, or an error if the
// listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runSweeper()

	go func() {
		log.Printf("server: listening on %s", ln.Addr())
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// runSweeper purges abandoned pairing codes on a timer so they do not
// pile up between restarts.
func (s *Server) runSweeper() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			if removed := s.pairing.Sweep(now); removed > 0 {
				log.Printf("server: swept %d expired pairing code(s)", removed)
			}
		}
	}
}

// Stop gracefully shuts down the server and stops the pairing sweeper.
// Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Printf("server: stopped")
	return nil
}
