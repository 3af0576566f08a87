// Package transport moves bytes between TCP sockets and the chat engine.
// Each connection runs a read loop and a write loop; neither interprets the
// stream, so framing and all protocol state stay with the caller.
package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/cattlechat/logging"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnReceive is returned when no receive callback is provided.
	ErrInvalidOnReceive = errors.New("invalid on receive callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when queueing a frame would exceed the send
	// queue limit. The peer is not reading fast enough; Write disconnects it.
	ErrBufferFull = errors.New("send queue full")
)

// Default configuration values.
const (
	// defaultQueueLimit is the default cap on bytes waiting to be written.
	defaultQueueLimit = 1 << 20
	// defaultReadSize is the default size of a single socket read.
	defaultReadSize = 4096
)

// Conn represents one TCP connection.
type Conn struct {
	rawConn *net.TCPConn
	logger  logging.Logger

	opts options

	closed    atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	cancel  context.CancelFunc
	failure error

	// Outbound frames in order. queued counts bytes not yet written. wake is
	// signaled when frames are added, drained after each written batch.
	qmu     sync.Mutex
	queue   [][]byte
	queued  int
	wake    chan struct{}
	drained chan struct{}
}

// NewConn creates a new connection wrapper around the given TCP connection.
// Returns an error if the receive callback is missing.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		rawConn: conn,
		logger:  opts.logger,
		opts:    opts,
		closing: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}, 1),
	}, nil
}

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, addr string, opt ...Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	conn, err := NewConn(c.(*net.TCPConn), opt...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.queueLimit <= 0 {
		opts.queueLimit = defaultQueueLimit
	}

	if opts.readSize <= 0 {
		opts.readSize = defaultReadSize
	}

	if opts.onReceive == nil {
		return ErrInvalidOnReceive
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = logging.Default()
	}

	return nil
}

// Run starts the connection's read and write loops and blocks until one of
// them fails or ctx is canceled. The connection is closed when Run returns.
// A peer that hangs up yields io.EOF.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Debug("connection established", "addr", c.Addr(),
		"queue_limit", c.opts.queueLimit,
		"read_size", c.opts.readSize,
		"read_timeout", c.opts.readTimeout,
		"write_timeout", c.opts.writeTimeout)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	group, child := errgroup.WithContext(ctx)

	// A blocked Read only returns once the socket is closed.
	stop := context.AfterFunc(child, c.closeConn)
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	c.mu.Lock()
	if c.failure != nil {
		err = c.failure
	}
	c.mu.Unlock()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		c.logger.Debug("connection closed", "addr", c.Addr())
	case errors.Is(err, io.EOF):
		c.logger.Debug("connection closed by peer", "addr", c.Addr())
	default:
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	}

	return err
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.closeOnce.Do(func() { close(c.closing) })

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a frame without blocking. Frames are written in the order
// they were queued, however many are waiting.
//
// Returns:
//   - nil: frame was queued (not yet sent)
//   - ErrBufferFull: the queue limit would be exceeded; the frame was NOT
//     queued and the connection is being closed
//   - ErrConnectionClosed: connection is closed
func (c *Conn) Write(message Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if !c.enqueue(message.Body()) {
		c.logger.Warn("send queue limit exceeded, disconnecting", "addr", c.Addr(), "limit", c.opts.queueLimit)
		c.fail(ErrBufferFull)
		return ErrBufferFull
	}
	return nil
}

// WriteBlocking queues a frame, waiting for the writer to make room until
// ctx is done or the connection closes.
func (c *Conn) WriteBlocking(ctx context.Context, message Message) error {
	data := message.Body()
	for {
		if c.closed.Load() {
			return ErrConnectionClosed
		}
		if c.enqueue(data) {
			return nil
		}

		select {
		case <-c.drained:
		case <-c.closing:
			return ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// enqueue appends data unless that would exceed the queue limit. A frame is
// always accepted by an empty queue.
func (c *Conn) enqueue(data []byte) bool {
	c.qmu.Lock()
	if c.queued > 0 && c.queued+len(data) > c.opts.queueLimit {
		c.qmu.Unlock()
		return false
	}
	c.queue = append(c.queue, data)
	c.queued += len(data)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Queued returns the number of bytes waiting to be written.
func (c *Conn) Queued() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return c.queued
}

// fail closes the connection and makes Run report err.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.failure == nil {
		c.failure = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads from the socket and hands every chunk to onReceive.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, c.opts.readSize)
	for {
		if c.opts.readTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
		}

		n, err := c.rawConn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if cerr := c.opts.onReceive(chunk); cerr != nil {
				return cerr
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			return errors.Wrap(err, "read")
		}
	}
}

// writeLoop writes everything queued, one batch per wake-up.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}

		c.qmu.Lock()
		batch := c.queue
		c.queue = nil
		c.qmu.Unlock()

		// Counted first; writing consumes batch.
		n := 0
		for _, b := range batch {
			n += len(b)
		}
		err := c.write(batch)

		c.qmu.Lock()
		c.queued -= n
		c.qmu.Unlock()
		select {
		case c.drained <- struct{}{}:
		default:
		}

		if err != nil {
			return err
		}
	}
}

// write sends a batch of frames with one deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}
	if c.opts.writeTimeout > 0 {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}

	bufs := net.Buffers(batch)
	_, err := bufs.WriteTo(c.rawConn)

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.closeOnce.Do(func() { close(c.closing) })
	_ = c.rawConn.Close()
}
