package room

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/transport"
	"github.com/Zereker/cattlechat/wire"
)

type recorder struct {
	events []wire.ChatEvent
	fail   bool
}

func (r *recorder) Write(m transport.Message) error {
	if r.fail {
		return transport.ErrBufferFull
	}
	pkt, _, err := wire.Decode(m.Body())
	if err != nil {
		return err
	}
	msg, err := wire.Parse(pkt)
	if err != nil {
		return err
	}
	if ev, ok := msg.(*wire.ChatEvent); ok {
		r.events = append(r.events, *ev)
	}
	return nil
}

func (r *recorder) reset() { r.events = nil }

func newMember(t *testing.T, name string) (*session.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := session.New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, rec)
	require.NoError(t, s.SetUsername(name))
	return s, rec
}

func ev(id wire.EventID, user, text string) wire.ChatEvent {
	return wire.ChatEvent{Event: id, Username: user, Text: text}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"", nil},
		{"a", nil},
		{"lobby", nil},
		{strings.Repeat("r", MaxName-1), nil},
		{strings.Repeat("r", MaxName), ErrNameTooLong},
		{"backstage", ErrRestricted},
		{"BackStage", ErrRestricted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateName(tt.name))
		})
	}
}

func TestJoin(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, ra := newMember(t, "alice")
	bob, rb := newMember(t, "bob")

	r, created := g.Ensure("lobby")
	assert.True(t, created)
	assert.Equal(t, DefaultTopic, r.Topic())

	g.Join("lobby", alice)
	assert.Equal(t, []wire.ChatEvent{ev(wire.EventUserJoin, "alice", "")}, ra.events)
	ra.reset()

	g.Join("lobby", bob)
	assert.Equal(t, []wire.ChatEvent{
		ev(wire.EventUserAlreadyIn, "alice", ""),
		ev(wire.EventUserJoin, "bob", ""),
	}, rb.events)
	assert.Equal(t, []wire.ChatEvent{ev(wire.EventUserJoin, "bob", "")}, ra.events)
	assert.Equal(t, []string{"alice", "bob"}, r.Usernames())

	_, created = g.Ensure("lobby")
	assert.False(t, created)
}

func TestJoin_Idempotent(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, _ := newMember(t, "alice")

	g.Join("lobby", alice)
	r := g.Join("lobby", alice)
	assert.Equal(t, 1, r.Len())
}

func TestLeave(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, ra := newMember(t, "alice")
	bob, rb := newMember(t, "bob")
	g.Join("lobby", alice)
	g.Join("lobby", bob)
	ra.reset()
	rb.reset()

	assert.True(t, g.Leave("lobby", bob))
	assert.Equal(t, []wire.ChatEvent{ev(wire.EventUserLeave, "bob", "")}, ra.events)
	assert.Empty(t, rb.events)

	assert.False(t, g.Leave("lobby", bob))
	assert.False(t, g.Leave("nowhere", bob))

	assert.True(t, g.Leave("lobby", alice))
	_, err := g.Find("lobby")
	assert.True(t, errors.Is(err, ErrNotFound))

	// The empty room is kept and reused.
	_, created := g.Ensure("lobby")
	assert.False(t, created)
}

func TestBroadcast_ContinuesPastFailure(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, ra := newMember(t, "alice")
	bob, rb := newMember(t, "bob")
	carol, rc := newMember(t, "carol")
	g.Join("lobby", alice)
	g.Join("lobby", bob)
	g.Join("lobby", carol)
	ra.reset()
	rc.reset()

	rb.fail = true
	n, err := g.Broadcast("lobby", wire.EventTalk, "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []wire.ChatEvent{ev(wire.EventTalk, "alice", "hi")}, ra.events)
	assert.Equal(t, []wire.ChatEvent{ev(wire.EventTalk, "alice", "hi")}, rc.events)

	_, err = g.Broadcast("nowhere", wire.EventTalk, "alice", "hi")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetTopic(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, ra := newMember(t, "alice")
	g.Join("lobby", alice)
	ra.reset()

	require.NoError(t, g.SetTopic("lobby", strings.Repeat("t", 2000), "alice"))
	r, err := g.Find("lobby")
	require.NoError(t, err)
	assert.Len(t, r.Topic(), MaxTopic-1)
	require.Len(t, ra.events, 1)
	assert.Equal(t, wire.EventTopicChanged, ra.events[0].Event)

	assert.True(t, errors.Is(g.SetTopic("nowhere", "x", "alice"), ErrNotFound))
}

func TestRooms_OnlyNonEmpty(t *testing.T) {
	g := NewRegistry(LoggerOption(logging.Discard()))
	alice, _ := newMember(t, "alice")
	bob, _ := newMember(t, "bob")

	g.Join("b", alice)
	g.Join("a", bob)
	g.Ensure("empty")

	rooms := g.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "a", rooms[0].Name())
	assert.Equal(t, "b", rooms[1].Name())
}
