package wire

import (
	"io"

	"github.com/pkg/errors"
)

// Decoder reassembles packets from a byte stream that arrives in arbitrary
// pieces. It is not safe for concurrent use.
type Decoder struct {
	buf       []byte
	discarded int
}

// Write appends stream bytes to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next returns the next complete packet. It returns ErrIncomplete when more
// bytes are needed; any other error is a framing error and the stream should
// be dropped.
func (d *Decoder) Next() (*Packet, error) {
	pkt, n, err := Decode(d.buf)
	if n > 0 {
		if pkt == nil {
			d.discarded += n
		} else {
			d.discarded += n - pkt.Length()
		}
		d.consume(n)
	}
	return pkt, err
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

// Buffered returns the number of bytes held waiting for the rest of a packet.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Discarded returns how many non-marker bytes were skipped since the last
// call, and resets the count.
func (d *Decoder) Discarded() int {
	n := d.discarded
	d.discarded = 0
	return n
}

// ReadPacket reads exactly one packet from r, skipping bytes until a marker
// is found. It blocks until the packet is complete.
func ReadPacket(r io.ByteReader) (*Packet, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	for marker != Marker {
		if marker, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}

	header := []byte{marker, 0, 0, 0}
	for i := 1; i < HeaderSize; i++ {
		if header[i], err = r.ReadByte(); err != nil {
			return nil, errors.Wrap(err, "read header")
		}
	}

	_, length, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	data := make([]byte, length)
	copy(data, header)
	if length > HeaderSize {
		reader, ok := r.(io.Reader)
		if !ok {
			reader = byteReader{r}
		}
		if _, err := io.ReadFull(reader, data[HeaderSize:]); err != nil {
			return nil, errors.Wrap(err, "read payload")
		}
	}
	return &Packet{data: data, pos: HeaderSize}, nil
}

type byteReader struct {
	io.ByteReader
}

func (b byteReader) Read(p []byte) (int, error) {
	for i := range p {
		c, err := b.ReadByte()
		if err != nil {
			return i, err
		}
		p[i] = c
	}
	return len(p), nil
}
