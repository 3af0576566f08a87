// Package client speaks the chat protocol from the user's side: it performs
// the handshake, logs in (creating the account when it does not exist yet),
// optionally joins a channel and then relays chat both ways.
package client

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/account"
	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/transport"
	"github.com/Zereker/cattlechat/wire"
)

// Version is sent in ClientInfo.
const Version = 1

var (
	// ErrVersionUnusable is returned when the server refuses this client version.
	ErrVersionUnusable = errors.New("client version is too old for this server")
	// ErrIncorrectPassword is returned when the server rejects the password.
	ErrIncorrectPassword = errors.New("password was incorrect")
	// ErrAccountInUse is returned when someone else is logged on with the name.
	ErrAccountInUse = errors.New("account is already in use")
	// ErrCreateFailed is returned when the account could not be created.
	ErrCreateFailed = errors.New("account could not be created")
)

// Client is one connection to a chat server.
type Client struct {
	conn     *transport.Conn
	opts     options
	username string
	password account.Hash

	// Touched only by the read loop.
	dec         wire.Decoder
	clientToken uint32
	serverToken uint32
	created     bool

	loginOnce sync.Once
	loginDone chan error
}

// Dial connects to addr as username. The password is hashed right away and
// never kept in clear.
func Dial(ctx context.Context, addr, username, password string, opts ...Option) (*Client, error) {
	o := options{logger: logging.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		opts:      o,
		username:  username,
		password:  account.HashPassword(password),
		loginDone: make(chan error, 1),
	}

	connOpts := append([]transport.Option{transport.LoggerOption(o.logger)}, o.connOpts...)
	connOpts = append(connOpts, transport.OnReceiveOption(c.receive))

	conn, err := transport.Dial(ctx, addr, connOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Run sends the handshake and serves the connection until it closes or ctx
// is canceled.
func (c *Client) Run(ctx context.Context) error {
	c.clientToken = randomToken()
	hello := &wire.ClientInfo{
		ClientToken: c.clientToken,
		Time:        uint32(time.Now().Unix()),
		Version:     Version,
		OS:          runtime.GOOS,
	}
	if err := c.conn.Write(hello.Packet()); err != nil {
		return errors.Wrap(err, "send client information")
	}

	err := c.conn.Run(ctx)
	c.finishLogin(errors.Wrap(transport.ErrConnectionClosed, "before login completed"))
	return err
}

// LoggedIn delivers nil once the client is logged in and has asked to join
// its channel, or the reason it never will be.
func (c *Client) LoggedIn() <-chan error {
	return c.loginDone
}

// Username is the name the client logs in with.
func (c *Client) Username() string { return c.username }

// Send sends a chat line: talk, or a /command.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.write(ctx, &wire.ChatCommand{Text: text})
}

// RequestRoomList asks for the members of room. The answer arrives through
// the RoomListOption callback.
func (c *Client) RequestRoomList(ctx context.Context, room string) error {
	return c.write(ctx, &wire.RequestRoomList{Room: room})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(ctx context.Context, m wire.Message) error {
	p := m.Packet()
	if _, err := p.Encode(); err != nil {
		return err
	}
	return c.conn.WriteBlocking(ctx, p)
}

// reply is used from the read loop, which must never block on the writer.
func (c *Client) reply(m wire.Message) error {
	if err := c.conn.Write(m.Packet()); err != nil {
		return errors.Wrapf(err, "send %s", m.Code())
	}
	return nil
}

func (c *Client) finishLogin(err error) {
	c.loginOnce.Do(func() {
		c.loginDone <- err
	})
}

// receive runs on the transport read loop.
func (c *Client) receive(chunk []byte) error {
	_, _ = c.dec.Write(chunk)
	for {
		pkt, err := c.dec.Next()
		if errors.Is(err, wire.ErrIncomplete) {
			return nil
		}
		if err != nil {
			return err
		}

		msg, err := wire.Parse(pkt)
		if err != nil {
			c.opts.logger.Warn("unreadable packet from server", "code", pkt.Code().String(), "error", err)
			if err := c.reply(&wire.Error{Description: "Unknown packet"}); err != nil {
				return err
			}
			continue
		}

		if err := c.handle(msg); err != nil {
			c.finishLogin(err)
			return err
		}
	}
}

func (c *Client) handle(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.Null:
		return nil
	case *wire.ServerInfo:
		if m.VersionUsable == 0 {
			return ErrVersionUnusable
		}
		c.serverToken = m.ServerToken
		c.opts.logger.Debug("received server information; logging in", "hash", m.HashType)
		return c.login()
	case *wire.LoginResponse:
		return c.loginResponse(account.LoginResult(m.Result))
	case *wire.CreateResponse:
		return c.createResponse(account.CreateResult(m.Result))
	case *wire.RoomList:
		if c.opts.onRoomList != nil {
			c.opts.onRoomList(m.Users)
		}
	case *wire.ChatEvent:
		if c.opts.onEvent != nil {
			c.opts.onEvent(*m)
		}
	case *wire.Error:
		c.opts.logger.Warn("server reported an error", "message", m.Description)
		if c.opts.onServerError != nil {
			c.opts.onServerError(m.Description)
		}
	default:
		return c.reply(&wire.Error{Description: "Client isn't allowed to receive that"})
	}
	return nil
}

func (c *Client) login() error {
	return c.reply(&wire.Login{
		Proof:    account.Proof(c.clientToken, c.serverToken, c.password),
		Username: c.username,
	})
}

func (c *Client) loginResponse(result account.LoginResult) error {
	switch result {
	case account.LoginSuccess:
		c.opts.logger.Info("logged in", "user", c.username)
		if c.opts.channel != "" {
			if err := c.reply(&wire.ChatCommand{Text: "/join " + c.opts.channel}); err != nil {
				return err
			}
		}
		c.finishLogin(nil)
		return nil
	case account.LoginUnknownAccount:
		if c.created {
			return errors.Wrap(ErrCreateFailed, "account still unknown after creation")
		}
		c.opts.logger.Info("account not found, attempting to create it", "user", c.username)
		return c.reply(&wire.Create{PasswordHash: c.password, Username: c.username})
	case account.LoginIncorrectPassword:
		return ErrIncorrectPassword
	case account.LoginAccountInUse:
		return ErrAccountInUse
	}
	return errors.Errorf("unknown login result %d", uint32(result))
}

func (c *Client) createResponse(result account.CreateResult) error {
	if result != account.CreateSuccess {
		return errors.Wrap(ErrCreateFailed, result.String())
	}
	c.created = true
	c.opts.logger.Info("account created", "user", c.username)
	return c.login()
}

func randomToken() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}
