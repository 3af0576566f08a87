package transport

import (
	"time"

	"github.com/Zereker/cattlechat/logging"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	logger logging.Logger

	// onReceive is called from the read loop with each chunk read from the
	// socket. The chunk is owned by the callback.
	onReceive func(chunk []byte) error
	// onError is called when a write error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	queueLimit   int           // bytes allowed to wait for the writer
	readSize     int           // size of a single socket read
	readTimeout  time.Duration // read deadline, 0 for none
	writeTimeout time.Duration // write deadline, 0 for none
}

// Option is a function that configures connection options.
type Option func(*options)

// QueueLimitOption returns an Option that caps how many bytes may wait to be
// written. A Write that would exceed it disconnects the peer.
func QueueLimitOption(bytes int) Option {
	return func(o *options) {
		o.queueLimit = bytes
	}
}

// ReadSizeOption returns an Option that sets how many bytes a single socket
// read may return.
func ReadSizeOption(size int) Option {
	return func(o *options) {
		o.readSize = size
	}
}

// ReadTimeoutOption returns an Option that sets the read deadline applied
// before every read. Zero disables it.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WriteTimeoutOption returns an Option that sets the write deadline applied
// before every write. Zero disables it.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the write error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnReceiveOption returns an Option that sets the receive callback.
// This callback is required. Returning an error stops the connection.
func OnReceiveOption(cb func(chunk []byte) error) Option {
	return func(o *options) {
		o.onReceive = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
