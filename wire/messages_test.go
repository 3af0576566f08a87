package wire

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	var proof [HashSize]byte
	for i := range proof {
		proof[i] = byte(i * 7)
	}

	msgs := []Message{
		&Null{},
		&ClientInfo{ClientToken: 0x1111, Time: 1700000000, Version: 1, Country: "", OS: "plan9"},
		&ServerInfo{ServerToken: 0xDEADBEEF, VersionUsable: 1, HashType: "sha1"},
		&Login{Proof: proof, Username: "alice"},
		&LoginResponse{Result: 3, Username: "alice"},
		&Create{PasswordHash: proof, Username: "bob"},
		&CreateResponse{Result: 4, Username: "bob"},
		&RequestRoomList{Room: "lobby"},
		&RoomList{Users: []string{"alice", "bob"}},
		&RoomList{},
		&ChatCommand{Text: "/w bob hello"},
		&ChatEvent{Event: EventWhisperFrom, Username: "alice", Text: "hello"},
		&Error{Description: "SID_LOGIN Invalid in this state"},
	}

	for _, m := range msgs {
		t.Run(m.Code().String(), func(t *testing.T) {
			got, err := Parse(m.Packet())
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestChatEvent_WireLayout(t *testing.T) {
	body := (&ChatEvent{Event: EventTalk, Username: "al", Text: "yo"}).Packet().Body()

	assert.Equal(t, []byte{
		0xFF, byte(CodeChatEvent), 14, 0,
		6, 0, 0, 0,
		'a', 'l', 0,
		'y', 'o', 0,
	}, body)
}

func TestRoomList_TerminatedByEmptyString(t *testing.T) {
	body := (&RoomList{Users: []string{"a"}}).Packet().Body()
	assert.Equal(t, []byte{'a', 0, 0}, body[HeaderSize:])
}

func TestParse_UnknownCode(t *testing.T) {
	_, err := Parse(NewPacket(Code(0x42)))
	assert.True(t, errors.Is(err, ErrUnknownCode))
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{"login without proof", NewPacket(CodeLogin).PutBytes([]byte{1, 2, 3})},
		{"login without name", NewPacket(CodeLogin).PutBytes(make([]byte, HashSize))},
		{"client info short", NewPacket(CodeClientInfo).PutUint32(1)},
		{"chat event no text", NewPacket(CodeChatEvent).PutUint32(1).PutString("x")},
		{"chat command empty", NewPacket(CodeChatCommand)},
		{"room list unterminated", NewPacket(CodeRoomList).PutString("a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.pkt)
			assert.True(t, errors.Is(err, ErrShortField), "got %v", err)
		})
	}
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "SID_LOGIN", CodeLogin.String())
	assert.Equal(t, "SID_0x42", Code(0x42).String())
	assert.True(t, CodeChatEvent.ServerOnly())
	assert.False(t, CodeChatCommand.ServerOnly())
	assert.False(t, Code(200).Known())
}
