// Package reactor runs the chat server event loop.
//
// Connections are read and written by transport goroutines, but everything
// they carry is funneled into one channel and handled by the single goroutine
// running Reactor.Run. Sessions, the authenticated table and the rooms are
// only ever touched from that goroutine.
package reactor

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/protocol"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/transport"
	"github.com/Zereker/cattlechat/wire"
)

// DefaultKeepalive is how often every session is sent a Null packet.
const DefaultKeepalive = 60 * time.Second

const defaultEventBuffer = 256

type eventKind int

const (
	evAccepted eventKind = iota
	evData
	evClosed
)

type event struct {
	kind eventKind
	sess *session.Session
	conn *transport.Conn
	data []byte
	err  error
}

type peer struct {
	conn *transport.Conn
	sess *session.Session
	dec  wire.Decoder
}

// Reactor owns every session and feeds their packets to a protocol.Handler.
// It implements transport.Handler.
type Reactor struct {
	handler *protocol.Handler
	logger  logging.Logger
	sink    notify.Sink

	keepalive   time.Duration
	idleTimeout time.Duration
	maxConns    int
	connOpts    []transport.Option

	events chan event
	base   context.Context
	stop   context.CancelFunc

	// Owned by the Run goroutine.
	peers map[uuid.UUID]*peer
}

// New returns a Reactor dispatching to handler.
func New(handler *protocol.Handler, opts ...Option) *Reactor {
	o := options{
		logger:      logging.Default(),
		sink:        notify.Discard{},
		keepalive:   DefaultKeepalive,
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base, stop := context.WithCancel(context.Background())
	return &Reactor{
		handler:     handler,
		logger:      o.logger,
		sink:        o.sink,
		keepalive:   o.keepalive,
		idleTimeout: o.idleTimeout,
		maxConns:    o.maxConns,
		connOpts:    o.connOpts,
		events:      make(chan event, o.eventBuffer),
		base:        base,
		stop:        stop,
		peers:       make(map[uuid.UUID]*peer),
	}
}

// Handle implements transport.Handler. It runs the connection until either
// side closes it, posting everything it reads to the event loop.
func (r *Reactor) Handle(conn *net.TCPConn) {
	var sess *session.Session

	opts := append([]transport.Option{transport.LoggerOption(r.logger)}, r.connOpts...)
	opts = append(opts, transport.OnReceiveOption(func(chunk []byte) error {
		return r.post(event{kind: evData, sess: sess, data: chunk})
	}))

	tc, err := transport.NewConn(conn, opts...)
	if err != nil {
		r.logger.Error("connection setup failed", "addr", conn.RemoteAddr(), "error", err)
		_ = conn.Close()
		return
	}
	sess = session.New(conn.RemoteAddr(), tc)

	if err := r.post(event{kind: evAccepted, sess: sess, conn: tc}); err != nil {
		_ = tc.Close()
		return
	}

	err = tc.Run(r.base)
	_ = r.post(event{kind: evClosed, sess: sess, err: err})
}

// post hands an event to the loop. It fails once the loop has stopped.
func (r *Reactor) post(ev event) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.base.Done():
		return errors.Wrap(context.Canceled, "reactor stopped")
	}
}

// Run is the event loop. It returns when ctx is canceled, after closing
// every connection.
func (r *Reactor) Run(ctx context.Context) error {
	defer r.stop()

	ticker := time.NewTicker(r.keepalive)
	defer ticker.Stop()

	r.logger.Info("reactor started", "keepalive", r.keepalive, "idle_timeout", r.idleTimeout, "max_connections", r.maxConns)

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			r.tick(now)
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Reactor) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case evAccepted:
		r.accept(ev.sess, ev.conn)
	case evData:
		if p, ok := r.peers[ev.sess.ID()]; ok {
			r.receive(ctx, p, ev.data)
		}
	case evClosed:
		if p, ok := r.peers[ev.sess.ID()]; ok {
			r.drop(p, "connection closed", ev.err)
		}
	}
}

func (r *Reactor) accept(sess *session.Session, conn *transport.Conn) {
	if r.maxConns > 0 && len(r.peers) >= r.maxConns {
		r.sink.Notify(notify.Warning, "connection refused: server full", "addr", sess.IP(), "limit", r.maxConns)
		_ = conn.Close()
		return
	}

	r.peers[sess.ID()] = &peer{conn: conn, sess: sess}
	r.sink.Notify(notify.Info, "client connected", "addr", sess.IP(), "session", sess.ID().String(), "connections", len(r.peers))
}

// receive feeds a chunk to the peer's decoder and handles every packet it
// completes, in order.
func (r *Reactor) receive(ctx context.Context, p *peer, data []byte) {
	_, _ = p.dec.Write(data)
	p.sess.Touch(time.Now())

	for {
		pkt, err := p.dec.Next()
		if n := p.dec.Discarded(); n > 0 {
			r.sink.Notify(notify.Warning, "skipped bytes before packet marker", "peer", p.sess.String(), "bytes", n)
		}
		if errors.Is(err, wire.ErrIncomplete) {
			return
		}
		if err != nil {
			r.drop(p, "framing error", err)
			return
		}

		r.handler.Handle(ctx, p.sess, pkt)
	}
}

// tick sends the keepalive and reaps silent sessions.
func (r *Reactor) tick(now time.Time) {
	for _, p := range r.peers {
		if r.idleTimeout > 0 && p.sess.Idle(now) > r.idleTimeout {
			r.drop(p, "idle timeout", nil)
			continue
		}
		r.handler.Keepalive(p.sess)
	}
}

// drop tears a session down: room, authenticated table and connection.
func (r *Reactor) drop(p *peer, reason string, cause error) {
	delete(r.peers, p.sess.ID())
	r.handler.Disconnect(p.sess)
	_ = p.conn.Close()

	args := []any{"peer", p.sess.String(), "reason", reason}
	if cause != nil && !errors.Is(cause, context.Canceled) {
		args = append(args, "error", cause)
	}
	r.logger.Debug("session dropped", args...)
}

func (r *Reactor) shutdown() {
	for id, p := range r.peers {
		_ = p.conn.Close()
		delete(r.peers, id)
	}
	r.logger.Info("reactor stopped")
}
