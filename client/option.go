package client

import (
	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/transport"
	"github.com/Zereker/cattlechat/wire"
)

type options struct {
	logger   logging.Logger
	channel  string
	connOpts []transport.Option

	onEvent       func(wire.ChatEvent)
	onServerError func(string)
	onRoomList    func([]string)
}

// Option configures a Client.
type Option func(*options)

// LoggerOption sets the logger.
func LoggerOption(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ChannelOption joins channel right after login.
func ChannelOption(channel string) Option {
	return func(o *options) {
		o.channel = channel
	}
}

// EventOption sets the callback for chat events. It runs on the read loop.
func EventOption(cb func(wire.ChatEvent)) Option {
	return func(o *options) {
		o.onEvent = cb
	}
}

// ServerErrorOption sets the callback for Error packets from the server.
func ServerErrorOption(cb func(description string)) Option {
	return func(o *options) {
		o.onServerError = cb
	}
}

// RoomListOption sets the callback for room member lists.
func RoomListOption(cb func(users []string)) Option {
	return func(o *options) {
		o.onRoomList = cb
	}
}

// ConnOptions adds transport options for the connection.
func ConnOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.connOpts = append(o.connOpts, opts...)
	}
}
