package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/logging"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

const (
	defaultDrainTimeout = 5 * time.Second
	maxAcceptDelay      = time.Second
)

// Handler is the interface for handling incoming TCP connections.
type Handler interface {
	// Handle is called in its own goroutine for each new connection.
	// The implementation owns the connection.
	Handle(conn *net.TCPConn)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(conn *net.TCPConn)

// Handle implements Handler.
func (f HandlerFunc) Handle(conn *net.TCPConn) { f(conn) }

// Server accepts chat connections and hands each one to a Handler.
type Server struct {
	listener     *net.TCPListener
	logger       logging.Logger
	drainTimeout time.Duration

	closed   atomic.Bool
	accepted atomic.Uint64
	handlers sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerDrainTimeoutOption bounds how long Serve waits for running handlers
// once it stops accepting. Zero returns without waiting.
func ServerDrainTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.drainTimeout = timeout
	}
}

// Listen creates a new TCP server bound to addr ("host:port"). The listening
// socket is opened with address reuse so a restarted server can rebind at once.
func Listen(ctx context.Context, addr string, opts ...ServerOption) (*Server, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener:     l.(*net.TCPListener),
		logger:       logging.Default(),
		drainTimeout: defaultDrainTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections until ctx is canceled or Close is called, running
// handler for each in its own goroutine. It then waits for the running
// handlers, up to the drain timeout. The result is ctx.Err() after a
// cancellation and ErrServerClosed after Close.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.Close()
	})
	defer stop()
	defer s.drain()

	var delay time.Duration
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("server stopped", "addr", s.listener.Addr(), "accepted", s.accepted.Load())
				return ctx.Err()
			}
			if s.closed.Load() {
				return ErrServerClosed
			}

			// Out of descriptors and the like: back off and retry.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				delay = backoff(delay)
				s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
				time.Sleep(delay)
				continue
			}
			s.logger.Error("accept error", "error", err)
			return errors.Wrap(err, "accept")
		}
		delay = 0

		s.accepted.Add(1)
		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler.Handle(conn)
		}()
	}
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	if delay *= 2; delay > maxAcceptDelay {
		delay = maxAcceptDelay
	}
	return delay
}

func (s *Server) drain() {
	if s.drainTimeout <= 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("handlers still running after drain timeout", "timeout", s.drainTimeout)
	}
}

// Close stops accepting connections. Running handlers are not interrupted.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return ErrServerClosed
	}
	return s.listener.Close()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() uint64 {
	return s.accepted.Load()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
