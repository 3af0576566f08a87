// Package protocol implements the server side of the chat protocol: the
// login sequence, the chat commands and the replies they produce.
//
// A Handler is driven by a single goroutine. It reads and mutates sessions,
// the authenticated session table and the room registry without locking.
package protocol

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/account"
	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/room"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/wire"
)

const (
	// ProtocolVersion is reported as usable in every ServerInfo.
	ProtocolVersion = 1
	// HashType names the password hash clients must use.
	HashType = "sha1"

	defaultDirectoryTimeout = 5 * time.Second
)

// Option configures a Handler.
type Option func(*Handler)

// LoggerOption sets the logger for protocol diagnostics.
func LoggerOption(logger logging.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// SinkOption sets where notices and room chat are displayed.
func SinkOption(sink notify.Sink) Option {
	return func(h *Handler) {
		h.sink = sink
	}
}

// DirectoryTimeoutOption bounds each account directory call.
// Zero means no bound beyond the caller's context.
func DirectoryTimeoutOption(timeout time.Duration) Option {
	return func(h *Handler) {
		h.directoryTimeout = timeout
	}
}

// Handler dispatches decoded packets to the protocol state machine.
type Handler struct {
	accounts account.Directory
	sessions *session.Table
	rooms    *room.Registry

	logger           logging.Logger
	sink             notify.Sink
	directoryTimeout time.Duration
}

// New returns a Handler working on the given directory, session table and
// room registry.
func New(accounts account.Directory, sessions *session.Table, rooms *room.Registry, opts ...Option) *Handler {
	h := &Handler{
		accounts:         accounts,
		sessions:         sessions,
		rooms:            rooms,
		logger:           logging.Default(),
		sink:             notify.Discard{},
		directoryTimeout: defaultDirectoryTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one packet received from s. Every problem with the packet
// is answered on the wire; Handle itself never fails.
func (h *Handler) Handle(ctx context.Context, s *session.Session, p *wire.Packet) {
	code := p.Code()

	switch {
	case code == wire.CodeNull:
		return
	case code == wire.CodeError:
		h.clientError(s, p)
		return
	case code.ServerOnly():
		h.sendError(s, "Client isn't allowed to send that")
		return
	case !code.Known():
		h.sendError(s, "Unknown packet")
		return
	}

	if !allowed(code, s.State()) {
		h.sendError(s, code.String()+" Invalid in this state")
		return
	}

	msg, err := wire.Parse(p)
	if err != nil {
		h.sink.Notify(notify.Warning, "malformed packet", "peer", s.String(), "code", code.String(), "error", err)
		h.sendError(s, fmt.Sprintf("Malformed %s packet", code))
		return
	}

	switch m := msg.(type) {
	case *wire.ClientInfo:
		h.clientInfo(s, m)
	case *wire.Login:
		h.login(ctx, s, m)
	case *wire.Create:
		h.create(ctx, s, m)
	case *wire.RequestRoomList:
		h.roomList(s, m)
	case *wire.ChatCommand:
		h.chatCommand(s, m.Text)
	}
}

// allowed reports whether a client packet with code may arrive in state st.
func allowed(code wire.Code, st session.State) bool {
	switch code {
	case wire.CodeClientInfo:
		return st == session.Connected
	case wire.CodeLogin, wire.CodeCreate:
		return st == session.InfoExchanged
	case wire.CodeChatCommand, wire.CodeRequestRoomList:
		return st == session.Authenticated || st == session.InRoom
	}
	return true
}

// Disconnect removes every trace of s: it leaves its room, telling the other
// members, and is dropped from the authenticated table.
func (h *Handler) Disconnect(s *session.Session) {
	if name := s.Room(); name != "" {
		h.rooms.Leave(name, s)
		h.sink.ChatEvent(name, wire.EventUserLeave, s.Username(), "")
		s.SetRoom("")
	}
	if s.Authenticated() {
		h.sessions.Remove(s)
	}
	h.sink.Notify(notify.Info, "client disconnected", "peer", s.String(), "state", s.State().String())
}

// Keepalive sends a Null packet to s.
func (h *Handler) Keepalive(s *session.Session) {
	if err := s.Send(&wire.Null{}); err != nil {
		h.logger.Debug("keepalive not sent", "peer", s.String(), "error", err)
	}
}

func (h *Handler) clientError(s *session.Session, p *wire.Packet) {
	var m wire.Error
	if err := m.Decode(p); err != nil {
		h.sink.Notify(notify.Error, "client sent an unreadable error", "peer", s.String())
		return
	}
	h.sink.Notify(notify.Error, "client sent an error", "peer", s.String(), "message", m.Description)
}

func (h *Handler) clientInfo(s *session.Session, m *wire.ClientInfo) {
	s.SetClientInfo(m.ClientToken, m.Country, m.OS)
	s.SetState(session.InfoExchanged)

	h.sink.Notify(notify.Debug, "client information received",
		"peer", s.String(), "version", m.Version, "country", m.Country, "os", m.OS)

	h.send(s, &wire.ServerInfo{
		ServerToken:   s.ServerToken(),
		VersionUsable: ProtocolVersion,
		HashType:      HashType,
	})
}

func (h *Handler) login(ctx context.Context, s *session.Session, m *wire.Login) {
	h.sink.Notify(notify.Notice, "user attempted authentication", "peer", s.String(), "user", m.Username)

	var result account.LoginResult
	switch {
	case account.ValidateName(m.Username) != account.CreateSuccess:
		result = account.LoginUnknownAccount
	case h.isLoggedOn(m.Username):
		result = account.LoginAccountInUse
	default:
		dctx, cancel := h.directoryContext(ctx)
		r, err := h.accounts.Login(dctx, m.Username, m.Proof, s.ClientToken(), s.ServerToken())
		cancel()
		if err != nil {
			h.sink.Notify(notify.Error, "account directory failed", "peer", s.String(), "user", m.Username, "error", err)
			h.sendError(s, "SID_LOGIN Account directory unavailable")
			return
		}
		result = r
	}

	h.send(s, &wire.LoginResponse{Result: uint32(result), Username: m.Username})

	if result != account.LoginSuccess {
		h.sink.Notify(notify.Error, "user failed authentication", "peer", s.String(), "user", m.Username, "result", result.String())
		return
	}

	if err := s.SetUsername(m.Username); err != nil {
		h.logger.Error("login on a named session", "peer", s.String(), "error", err)
		return
	}
	if err := h.sessions.Insert(s); err != nil {
		h.logger.Error("authenticated session not indexed", "peer", s.String(), "error", err)
		return
	}
	s.SetState(session.Authenticated)
	h.sink.Notify(notify.Debug, "user authenticated", "peer", s.String())
}

func (h *Handler) isLoggedOn(name string) bool {
	_, ok := h.sessions.Find(name)
	return ok
}

func (h *Handler) create(ctx context.Context, s *session.Session, m *wire.Create) {
	dctx, cancel := h.directoryContext(ctx)
	result, err := h.accounts.Create(dctx, m.Username, m.PasswordHash)
	cancel()
	if err != nil {
		h.sink.Notify(notify.Error, "account directory failed", "peer", s.String(), "user", m.Username, "error", err)
		h.sendError(s, "SID_CREATE Account directory unavailable")
		return
	}

	h.sink.Notify(notify.Notice, "account creation", "peer", s.String(), "user", m.Username, "result", result.String())
	h.send(s, &wire.CreateResponse{Result: uint32(result), Username: m.Username})
}

func (h *Handler) directoryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.directoryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.directoryTimeout)
}

func (h *Handler) roomList(s *session.Session, m *wire.RequestRoomList) {
	var users []string
	if r, err := h.rooms.Find(m.Room); err == nil {
		users = r.Usernames()
	}

	// Keep the longest prefix of the member list that still fits a packet.
	n := sort.Search(len(users)+1, func(n int) bool {
		return !fits(&wire.RoomList{Users: users[:n]})
	})
	if n <= len(users) {
		h.logger.Info("room list truncated", "peer", s.String(), "room", m.Room, "members", len(users), "sent", n-1)
		users = users[:n-1]
	}
	h.send(s, &wire.RoomList{Users: users})
}

// fits reports whether msg can be framed in a single packet.
func fits(msg wire.Message) bool {
	_, err := msg.Packet().Encode()
	return !errors.Is(err, wire.ErrTooLarge)
}

func (h *Handler) send(s *session.Session, msg wire.Message) {
	if err := s.Send(msg); err != nil {
		h.logger.Debug("reply not sent", "peer", s.String(), "code", msg.Code().String(), "error", err)
	}
}

func (h *Handler) sendError(s *session.Session, description string) {
	h.send(s, &wire.Error{Description: description})
}

// info and fail send an event to s alone, named after s itself.
func (h *Handler) info(s *session.Session, text string) {
	h.send(s, &wire.ChatEvent{Event: wire.EventInfo, Username: s.Username(), Text: text})
}

func (h *Handler) fail(s *session.Session, text string) {
	h.send(s, &wire.ChatEvent{Event: wire.EventError, Username: s.Username(), Text: text})
}
