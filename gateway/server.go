// Package gateway implements the connection manager: a Unix-socket server
// that drives the read/decode/validate/dispatch/respond cycle for each
// client connection.
//
// Every accepted connection gets its own goroutine and its own dedicated
// backend session; workers share nothing mutable except the backend store
// itself. The accept loop is the only serialization point and never blocks
// on a client. Requests on one connection are processed strictly in the
// order received; there is no batching or reordering across connections.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/keyspace"
	"github.com/threelight/redisgate/metric"
	"github.com/threelight/redisgate/redisclient"
	"github.com/threelight/redisgate/schema"
)

// Deps holds the server's dependencies. Grammar and Schemas are immutable
// after construction and read by all workers without locking.
type Deps struct {
	SocketPath string
	Client     *redisclient.Client
	Grammar    *keyspace.Grammar
	Schemas    *schema.Registry
	Registry   *metric.MetricsRegistry // optional
	Logger     *slog.Logger            // optional
}

// Server accepts producer connections on a local stream socket.
type Server struct {
	socketPath string
	client     *redisclient.Client
	grammar    *keyspace.Grammar
	schemas    *schema.Registry
	logger     *slog.Logger
	metrics    *metric.Metrics

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// NewServer creates a server from its dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *metric.Metrics
	if deps.Registry != nil {
		metrics = deps.Registry.CoreMetrics()
	}

	return &Server{
		socketPath: deps.SocketPath,
		client:     deps.Client,
		grammar:    deps.Grammar,
		schemas:    deps.Schemas,
		logger:     logger.With("component", "gateway"),
		metrics:    metrics,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and launches the accept loop. A stale socket file
// left by a previous instance is removed first, so at most one instance can
// be active against the path at a time.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start gateway")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.running.Store(false)
		return errors.WrapFatal(err, "Server", "Start", "remove stale socket")
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.running.Store(false)
		return errors.WrapFatal(err, "Server", "Start", "bind unix socket")
	}
	s.ln = ln

	s.logger.Info("gateway listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// acceptLoop hands each new connection to its own worker and immediately
// resumes accepting, so one slow client cannot block acceptance.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		if s.metrics != nil {
			s.metrics.ConnectionsTotal.Inc()
			s.metrics.ConnectionsActive.Inc()
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.connsMu.Lock()
				delete(s.conns, conn)
				s.connsMu.Unlock()
				if s.metrics != nil {
					s.metrics.ConnectionsActive.Dec()
				}
			}()
			s.handleConn(context.Background(), conn)
		}()
	}
}

// Stop closes the listener and waits for in-flight connection handlers.
// Closing the Unix listener also unlinks the socket file.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "Server", "Stop", "stop gateway")
	}

	err := s.ln.Close()

	// Workers have no cancellation of their own; force their reads to fail
	// so Stop does not wait on idle clients.
	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("gateway stopped")
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "close listener")
	}
	return nil
}

// connID returns a short identifier for per-connection log correlation.
func connID() string {
	return uuid.NewString()[:8]
}
