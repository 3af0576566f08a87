package wire

import (
	"github.com/pkg/errors"
)

// HashSize is the size of the password hashes carried by Login and Create.
const HashSize = 20

// ErrUnknownCode is returned by Parse for codes it has no message type for.
var ErrUnknownCode = errors.New("unknown packet code")

// Message is a typed protocol message.
type Message interface {
	// Code returns the packet code of the message.
	Code() Code
	// Packet encodes the message.
	Packet() *Packet
	// Decode fills the message from a packet with the matching code.
	Decode(p *Packet) error
}

// Null is the keepalive message.
type Null struct{}

func (*Null) Code() Code { return CodeNull }

func (*Null) Packet() *Packet { return NewPacket(CodeNull) }

func (*Null) Decode(*Packet) error { return nil }

// ClientInfo opens the handshake.
type ClientInfo struct {
	ClientToken uint32
	Time        uint32
	Version     uint32
	Country     string
	OS          string
}

func (*ClientInfo) Code() Code { return CodeClientInfo }

func (m *ClientInfo) Packet() *Packet {
	return NewPacket(CodeClientInfo).
		PutUint32(m.ClientToken).
		PutUint32(m.Time).
		PutUint32(m.Version).
		PutString(m.Country).
		PutString(m.OS)
}

func (m *ClientInfo) Decode(p *Packet) (err error) {
	if m.ClientToken, err = p.Uint32(); err != nil {
		return err
	}
	if m.Time, err = p.Uint32(); err != nil {
		return err
	}
	if m.Version, err = p.Uint32(); err != nil {
		return err
	}
	if m.Country, err = p.String(MaxString); err != nil {
		return err
	}
	m.OS, err = p.String(MaxString)
	return err
}

// ServerInfo answers ClientInfo.
type ServerInfo struct {
	ServerToken uint32
	// VersionUsable is 0 when the client must upgrade before connecting.
	VersionUsable uint32
	HashType      string
	Country       string
	OS            string
}

func (*ServerInfo) Code() Code { return CodeServerInfo }

func (m *ServerInfo) Packet() *Packet {
	return NewPacket(CodeServerInfo).
		PutUint32(m.ServerToken).
		PutUint32(m.VersionUsable).
		PutString(m.HashType).
		PutString(m.Country).
		PutString(m.OS)
}

func (m *ServerInfo) Decode(p *Packet) (err error) {
	if m.ServerToken, err = p.Uint32(); err != nil {
		return err
	}
	if m.VersionUsable, err = p.Uint32(); err != nil {
		return err
	}
	if m.HashType, err = p.String(MaxString); err != nil {
		return err
	}
	if m.Country, err = p.String(MaxString); err != nil {
		return err
	}
	m.OS, err = p.String(MaxString)
	return err
}

// Login carries H(clientToken, serverToken, H(password)) and the username.
type Login struct {
	Proof    [HashSize]byte
	Username string
}

func (*Login) Code() Code { return CodeLogin }

func (m *Login) Packet() *Packet {
	return NewPacket(CodeLogin).PutBytes(m.Proof[:]).PutString(m.Username)
}

func (m *Login) Decode(p *Packet) error {
	return decodeCredentials(p, &m.Proof, &m.Username)
}

// Create carries H(password) and the requested account name.
type Create struct {
	PasswordHash [HashSize]byte
	Username     string
}

func (*Create) Code() Code { return CodeCreate }

func (m *Create) Packet() *Packet {
	return NewPacket(CodeCreate).PutBytes(m.PasswordHash[:]).PutString(m.Username)
}

func (m *Create) Decode(p *Packet) error {
	return decodeCredentials(p, &m.PasswordHash, &m.Username)
}

func decodeCredentials(p *Packet, hash *[HashSize]byte, name *string) error {
	b, err := p.Bytes(HashSize)
	if err != nil {
		return err
	}
	copy(hash[:], b)
	*name, err = p.String(MaxString)
	return err
}

// LoginResponse answers Login. Result values are defined by the account package.
type LoginResponse struct {
	Result   uint32
	Username string
}

func (*LoginResponse) Code() Code { return CodeLoginResponse }

func (m *LoginResponse) Packet() *Packet {
	return NewPacket(CodeLoginResponse).PutUint32(m.Result).PutString(m.Username)
}

func (m *LoginResponse) Decode(p *Packet) error {
	return decodeResult(p, &m.Result, &m.Username)
}

// CreateResponse answers Create.
type CreateResponse struct {
	Result   uint32
	Username string
}

func (*CreateResponse) Code() Code { return CodeCreateResponse }

func (m *CreateResponse) Packet() *Packet {
	return NewPacket(CodeCreateResponse).PutUint32(m.Result).PutString(m.Username)
}

func (m *CreateResponse) Decode(p *Packet) error {
	return decodeResult(p, &m.Result, &m.Username)
}

func decodeResult(p *Packet, result *uint32, name *string) (err error) {
	if *result, err = p.Uint32(); err != nil {
		return err
	}
	*name, err = p.String(MaxString)
	return err
}

// RequestRoomList asks for the members of Room.
type RequestRoomList struct {
	Room string
}

func (*RequestRoomList) Code() Code { return CodeRequestRoomList }

func (m *RequestRoomList) Packet() *Packet {
	return NewPacket(CodeRequestRoomList).PutString(m.Room)
}

func (m *RequestRoomList) Decode(p *Packet) (err error) {
	m.Room, err = p.String(MaxString)
	return err
}

// RoomList lists usernames. On the wire the list ends with an empty string.
type RoomList struct {
	Users []string
}

func (*RoomList) Code() Code { return CodeRoomList }

func (m *RoomList) Packet() *Packet {
	p := NewPacket(CodeRoomList)
	for _, u := range m.Users {
		if u != "" {
			p.PutString(u)
		}
	}
	return p.PutString("")
}

func (m *RoomList) Decode(p *Packet) error {
	m.Users = nil
	for {
		u, err := p.String(MaxString)
		if err != nil {
			return err
		}
		if u == "" {
			return nil
		}
		m.Users = append(m.Users, u)
	}
}

// ChatCommand is a line typed by the user: either chat text or a /command.
type ChatCommand struct {
	Text string
}

func (*ChatCommand) Code() Code { return CodeChatCommand }

func (m *ChatCommand) Packet() *Packet {
	return NewPacket(CodeChatCommand).PutString(m.Text)
}

func (m *ChatCommand) Decode(p *Packet) (err error) {
	m.Text, err = p.String(MaxString)
	return err
}

// ChatEvent is delivered to clients for everything that happens in chat.
type ChatEvent struct {
	Event    EventID
	Username string
	Text     string
}

func (*ChatEvent) Code() Code { return CodeChatEvent }

func (m *ChatEvent) Packet() *Packet {
	return NewPacket(CodeChatEvent).
		PutUint32(uint32(m.Event)).
		PutString(m.Username).
		PutString(m.Text)
}

func (m *ChatEvent) Decode(p *Packet) error {
	ev, err := p.Uint32()
	if err != nil {
		return err
	}
	m.Event = EventID(ev)
	if m.Username, err = p.String(MaxString); err != nil {
		return err
	}
	m.Text, err = p.String(MaxString)
	return err
}

// Error reports a packet the sender could not accept.
type Error struct {
	Description string
}

func (*Error) Code() Code { return CodeError }

func (m *Error) Packet() *Packet {
	return NewPacket(CodeError).PutString(m.Description)
}

func (m *Error) Decode(p *Packet) (err error) {
	m.Description, err = p.String(MaxString)
	return err
}

// New returns an empty message for code.
func New(code Code) (Message, error) {
	switch code {
	case CodeNull:
		return &Null{}, nil
	case CodeClientInfo:
		return &ClientInfo{}, nil
	case CodeServerInfo:
		return &ServerInfo{}, nil
	case CodeLogin:
		return &Login{}, nil
	case CodeLoginResponse:
		return &LoginResponse{}, nil
	case CodeCreate:
		return &Create{}, nil
	case CodeCreateResponse:
		return &CreateResponse{}, nil
	case CodeRequestRoomList:
		return &RequestRoomList{}, nil
	case CodeRoomList:
		return &RoomList{}, nil
	case CodeChatCommand:
		return &ChatCommand{}, nil
	case CodeChatEvent:
		return &ChatEvent{}, nil
	case CodeError:
		return &Error{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownCode, "code 0x%02X", uint8(code))
}

// Parse decodes the payload of p into its typed message.
func Parse(p *Packet) (Message, error) {
	m, err := New(p.Code())
	if err != nil {
		return nil, err
	}
	if err := m.Decode(p); err != nil {
		return nil, err
	}
	return m, nil
}
