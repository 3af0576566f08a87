// Package session holds the per-connection protocol state.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/transport"
	"github.com/Zereker/cattlechat/wire"
)

// State is where a session is in the login sequence.
type State int

const (
	// Connected: nothing received yet.
	Connected State = iota
	// InfoExchanged: ClientInfo received and ServerInfo sent.
	InfoExchanged
	// Authenticated: logged in, not in a room.
	Authenticated
	// InRoom: logged in and in a room.
	InRoom
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case InfoExchanged:
		return "info exchanged"
	case Authenticated:
		return "authenticated"
	case InRoom:
		return "in room"
	}
	return "unknown"
}

// ErrUsernameSet is returned when a session that already has a username is
// given another one.
var ErrUsernameSet = errors.New("username already set")

// Sender delivers encoded frames to the peer. *transport.Conn satisfies it.
type Sender interface {
	Write(m transport.Message) error
}

// Session is one client connection. Sessions are owned by a single goroutine
// and are not safe for concurrent use.
type Session struct {
	id     uuid.UUID
	addr   net.Addr
	sender Sender

	serverToken uint32
	clientToken uint32
	country     string
	os          string

	state    State
	username string
	room     string
	lastSeen time.Time
}

// New creates a session in the Connected state with a random server token.
func New(addr net.Addr, sender Sender) *Session {
	return &Session{
		id:          uuid.New(),
		addr:        addr,
		sender:      sender,
		serverToken: randomToken(),
		lastSeen:    time.Now(),
	}
}

func randomToken() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}

// ID identifies the session for its lifetime.
func (s *Session) ID() uuid.UUID { return s.id }

// Addr is the peer address.
func (s *Session) Addr() net.Addr { return s.addr }

// IP is the peer host without the port.
func (s *Session) IP() string {
	if s.addr == nil {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(s.addr.String()); err == nil {
		return host
	}
	return s.addr.String()
}

// ServerToken is the nonce sent in ServerInfo.
func (s *Session) ServerToken() uint32 { return s.serverToken }

// ClientToken is the nonce received in ClientInfo.
func (s *Session) ClientToken() uint32 { return s.clientToken }

// SetClientInfo records what the client said about itself.
func (s *Session) SetClientInfo(token uint32, country, os string) {
	s.clientToken = token
	s.country = country
	s.os = os
}

// Country is the client's reported country.
func (s *Session) Country() string { return s.country }

// OS is the client's reported operating system.
func (s *Session) OS() string { return s.os }

// State returns the current state.
func (s *Session) State() State { return s.state }

// SetState moves the session to st.
func (s *Session) SetState(st State) { s.state = st }

// Authenticated reports whether the session has logged in.
func (s *Session) Authenticated() bool { return s.state >= Authenticated }

// Username is empty until login succeeds.
func (s *Session) Username() string { return s.username }

// SetUsername sets the username. It can only be done once.
func (s *Session) SetUsername(name string) error {
	if s.username != "" {
		return errors.Wrapf(ErrUsernameSet, "session %s is %q", s.id, s.username)
	}
	s.username = name
	return nil
}

// Room is the current room, empty when not in one.
func (s *Session) Room() string { return s.room }

// SetRoom records the current room.
func (s *Session) SetRoom(name string) { s.room = name }

// Touch records activity from the peer.
func (s *Session) Touch(now time.Time) { s.lastSeen = now }

// Idle returns how long the peer has been silent.
func (s *Session) Idle(now time.Time) time.Duration { return now.Sub(s.lastSeen) }

// Send encodes msg and queues it for the peer.
func (s *Session) Send(msg wire.Message) error {
	p := msg.Packet()
	if _, err := p.Encode(); err != nil {
		return err
	}
	if s.sender == nil {
		return transport.ErrConnectionClosed
	}
	if err := s.sender.Write(p); err != nil {
		return errors.Wrapf(err, "send %s to %s", msg.Code(), s)
	}
	return nil
}

// SendEvent sends a chat event.
func (s *Session) SendEvent(ev wire.EventID, username, text string) error {
	return s.Send(&wire.ChatEvent{Event: ev, Username: username, Text: text})
}

// String names the session for logs.
func (s *Session) String() string {
	if s.username != "" {
		return s.username + "@" + s.IP()
	}
	return s.IP()
}
