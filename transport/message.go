package transport

// Message is the interface for frames written to a connection.
// *wire.Packet satisfies it.
type Message interface {
	// Length returns the length of the encoded frame.
	Length() int
	// Body returns the encoded frame.
	Body() []byte
}

// Bytes is a Message holding already encoded bytes.
type Bytes []byte

// Length implements Message.
func (b Bytes) Length() int { return len(b) }

// Body implements Message.
func (b Bytes) Body() []byte { return b }
