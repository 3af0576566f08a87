package reactor

import (
	"time"

	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/transport"
)

type options struct {
	logger      logging.Logger
	sink        notify.Sink
	keepalive   time.Duration
	idleTimeout time.Duration
	maxConns    int
	eventBuffer int
	connOpts    []transport.Option
}

// Option configures a Reactor.
type Option func(*options)

// LoggerOption sets the logger for the loop and its connections.
func LoggerOption(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// SinkOption sets where connection notices are displayed.
func SinkOption(sink notify.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// KeepaliveOption sets the keepalive interval. Non-positive values keep the default.
func KeepaliveOption(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.keepalive = interval
		}
	}
}

// IdleTimeoutOption drops sessions that sent nothing for longer than timeout.
// The check runs on each keepalive. Zero never drops a session.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// MaxConnectionsOption caps concurrent sessions; extra connections are closed
// on arrival. Zero means no cap.
func MaxConnectionsOption(n int) Option {
	return func(o *options) {
		o.maxConns = n
	}
}

// EventBufferOption sets how many transport events may queue for the loop.
func EventBufferOption(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// ConnOptions adds options applied to every accepted connection.
func ConnOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.connOpts = append(o.connOpts, opts...)
	}
}
