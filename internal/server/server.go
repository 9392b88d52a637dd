// Package server implements kedung's Unix-socket connection handler: it
// accepts connections, runs one framing/dispatch loop per connection, and
// drives the background expiry sweeper. The TTL store outlives every
// connection.
package server

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpecel/kedung/internal/store"
)

// readBufferSize is the per-connection read buffer, fixed by the spec.
const readBufferSize = 512 * 1024

// Server accepts connections on a Unix socket and dispatches framed JSON
// commands against a shared TTL store.
type Server struct {
	SocketPath     string
	PrefixWidth    int
	SweepInterval  time.Duration
	Logger         zerolog.Logger

	store    *store.Store
	listener net.Listener

	mu      sync.Mutex
	running bool
	conns   map[net.Conn]struct{}
}

// New returns a Server backed by s, listening at socketPath once Run is
// called.
func New(s *store.Store, socketPath string, prefixWidth int, sweepInterval time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		SocketPath:    socketPath,
		PrefixWidth:   prefixWidth,
		SweepInterval: sweepInterval,
		Logger:        logger,
		store:         s,
		conns:         make(map[net.Conn]struct{}),
	}
}

// listen creates (or truncates) the socket file and binds it. On
// EADDRINUSE/ECONNREFUSED (errno 98/106) it unlinks the stale socket file
// and retries exactly once; any other failure, or a second failure after
// the retry, is fatal — per spec.md §4.D and §9, preserved intentionally.
func (s *Server) listen() (net.Listener, error) {
	os.Remove(s.SocketPath) // create/truncate: start from a clean socket file

	ln, err := net.Listen("unix", s.SocketPath)
	if err == nil {
		return ln, nil
	}

	if !isStaleSocketError(err) {
		return nil, err
	}

	s.Logger.Warn().Err(err).Msg("bind failed, unlinking stale socket and retrying once")
	os.Remove(s.SocketPath)

	return net.Listen("unix", s.SocketPath)
}

func isStaleSocketError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EADDRINUSE || errno == syscall.ECONNREFUSED
	}
	return false
}

// Run starts accepting connections and the expiry sweeper, blocking until
// ctx is cancelled. On cancellation it stops accepting, closes the
// listener, clears the store, and returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.Logger.Info().Str("socket", s.SocketPath).Msg("server listening")

	var wg sync.WaitGroup
	go s.sweep(ctx)

	acceptErrs := make(chan error, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				acceptErrs <- err
				return
			}
			s.trackConn(conn)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.untrackConn(conn)
				s.handleConnection(ctx, conn)
			}()
		}
	}()

	select {
	case <-ctx.Done():
		s.Logger.Info().Msg("shutting down: closing listener")
		ln.Close()
		s.closeAllConns()
		wg.Wait()
		s.store.Flush()
		return nil
	case err := <-acceptErrs:
		s.mu.Lock()
		stillRunning := s.running
		s.mu.Unlock()
		if !stillRunning {
			return nil
		}
		return err
	}
}

// Stop marks the server as no longer running; subsequent accept errors
// caused by the listener closing are not treated as failures.
func (s *Server) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
