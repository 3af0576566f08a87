// Package wire implements the Cattle Chat packet format.
//
// Every packet starts with a four byte header: the 0xFF marker, the packet
// code and the total packet length (header included) as a little-endian
// uint16. The payload is a sequence of little-endian integers, NUL-terminated
// strings and raw byte blobs whose layout is fixed per code.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Marker is the first byte of every packet.
	Marker = 0xFF
	// HeaderSize is the size of the packet header.
	HeaderSize = 4
	// MaxPacketSize is the largest accepted packet, header included.
	MaxPacketSize = 9600
	// MaxString caps decoded strings when the message has no tighter limit.
	MaxString = MaxPacketSize

	startingCapacity = 64
)

var (
	// ErrIncomplete is returned when the buffer does not yet hold a full packet.
	ErrIncomplete = errors.New("incomplete packet")
	// ErrBadLength is returned for a length field outside [HeaderSize, MaxPacketSize].
	// It is a framing error: the stream can no longer be trusted.
	ErrBadLength = errors.New("invalid packet length")
	// ErrShortField is returned when a field reaches past the end of the packet.
	ErrShortField = errors.New("field exceeds packet")
	// ErrTooLarge is returned when an encoded packet exceeds MaxPacketSize.
	ErrTooLarge = errors.New("packet too large")
)

// Packet is one framed protocol message. A packet built with NewPacket is
// appended to; a packet returned by Decode is read from, starting right after
// the header.
type Packet struct {
	data []byte
	pos  int
}

// NewPacket returns an empty packet with the given code.
func NewPacket(code Code) *Packet {
	data := make([]byte, HeaderSize, startingCapacity)
	data[0] = Marker
	data[1] = byte(code)
	binary.LittleEndian.PutUint16(data[2:], HeaderSize)
	return &Packet{data: data, pos: HeaderSize}
}

// Code returns the packet code.
func (p *Packet) Code() Code {
	return Code(p.data[1])
}

// Length returns the total packet length, header included.
func (p *Packet) Length() int {
	return len(p.data)
}

// Body returns the encoded packet, header included.
func (p *Packet) Body() []byte {
	return p.data
}

// Encode returns the encoded packet, or ErrTooLarge if it cannot be framed.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.data) > MaxPacketSize {
		return nil, errors.Wrapf(ErrTooLarge, "%s is %d bytes", p.Code(), len(p.data))
	}
	return p.data, nil
}

func (p *Packet) appendBytes(b ...byte) *Packet {
	p.data = append(p.data, b...)
	binary.LittleEndian.PutUint16(p.data[2:], uint16(len(p.data)))
	return p
}

// PutUint8 appends a single byte.
func (p *Packet) PutUint8(v uint8) *Packet {
	return p.appendBytes(v)
}

// PutUint16 appends a little-endian uint16.
func (p *Packet) PutUint16(v uint16) *Packet {
	return p.appendBytes(byte(v), byte(v>>8))
}

// PutUint32 appends a little-endian uint32.
func (p *Packet) PutUint32(v uint32) *Packet {
	return p.appendBytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// PutString appends s followed by a NUL terminator. Bytes of s after an
// embedded NUL would be unreadable, so s is cut there.
func (p *Packet) PutString(s string) *Packet {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			s = s[:i]
			break
		}
	}
	p.appendBytes([]byte(s)...)
	return p.appendBytes(0)
}

// PutBytes appends raw bytes.
func (p *Packet) PutBytes(b []byte) *Packet {
	return p.appendBytes(b...)
}

// Remaining returns the number of unread payload bytes.
func (p *Packet) Remaining() int {
	return len(p.data) - p.pos
}

func (p *Packet) need(n int, what string) error {
	if p.pos+n > len(p.data) {
		return errors.Wrapf(ErrShortField, "%s: %s needs %d bytes, %d left", p.Code(), what, n, p.Remaining())
	}
	return nil
}

// Uint8 reads one byte.
func (p *Packet) Uint8() (uint8, error) {
	if err := p.need(1, "uint8"); err != nil {
		return 0, err
	}
	v := p.data[p.pos]
	p.pos++
	return v, nil
}

// Uint16 reads a little-endian uint16.
func (p *Packet) Uint16() (uint16, error) {
	if err := p.need(2, "uint16"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(p.data[p.pos:])
	p.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (p *Packet) Uint32() (uint32, error) {
	if err := p.need(4, "uint32"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return v, nil
}

// Bytes reads n raw bytes into a fresh slice.
func (p *Packet) Bytes(n int) ([]byte, error) {
	if err := p.need(n, "bytes"); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, p.data[p.pos:])
	p.pos += n
	return b, nil
}

// String reads a NUL-terminated string. The whole string is consumed, but
// at most max-1 characters are kept. Bytes outside printable ASCII are
// replaced with '.'.
func (p *Packet) String(max int) (string, error) {
	end := -1
	for i := p.pos; i < len(p.data); i++ {
		if p.data[i] == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return "", errors.Wrapf(ErrShortField, "%s: unterminated string", p.Code())
	}

	raw := p.data[p.pos:end]
	p.pos = end + 1
	if max > 0 && len(raw) > max-1 {
		raw = raw[:max-1]
	}

	out := make([]byte, len(raw))
	for i, c := range raw {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out), nil
}

// parseHeader validates a four byte header and returns the code and total
// packet length.
func parseHeader(h []byte) (Code, int, error) {
	length := int(binary.LittleEndian.Uint16(h[2:]))
	if length < HeaderSize || length > MaxPacketSize {
		return 0, 0, errors.Wrapf(ErrBadLength, "length %d", length)
	}
	return Code(h[1]), length, nil
}

// Decode parses one packet from the front of data.
//
// Bytes before the first Marker are skipped; consumed includes them, so a
// caller can always drop data[:consumed]. If data does not yet hold a whole
// packet, Decode returns ErrIncomplete and consumed covers only the skipped
// bytes. ErrBadLength means the stream is corrupt and must be abandoned.
func Decode(data []byte) (pkt *Packet, consumed int, err error) {
	skipped := 0
	for skipped < len(data) && data[skipped] != Marker {
		skipped++
	}
	data = data[skipped:]

	if len(data) < HeaderSize {
		return nil, skipped, ErrIncomplete
	}

	_, length, err := parseHeader(data)
	if err != nil {
		return nil, skipped, err
	}
	if len(data) < length {
		return nil, skipped, ErrIncomplete
	}

	buf := make([]byte, length)
	copy(buf, data)
	return &Packet{data: buf, pos: HeaderSize}, skipped + length, nil
}
