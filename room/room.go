// Package room keeps the chat rooms and their members.
//
// A Registry is owned by the reactor goroutine, like the sessions it holds,
// and is not safe for concurrent use.
package room

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/wire"
)

const (
	// MinName is the shortest legal room name.
	MinName = 1
	// MaxName bounds room names: legal names are shorter than MaxName.
	MaxName = 16
	// MaxTopic bounds topics: a topic keeps at most MaxTopic-1 characters.
	MaxTopic = 1024

	// DefaultTopic is the topic of a new room.
	DefaultTopic = "No topic"

	restricted = "backstage"
)

var (
	// ErrNotFound is returned for a room that does not exist or has no members.
	ErrNotFound = errors.New("room not found")
	// ErrRestricted is returned for a room name nobody may join.
	ErrRestricted = errors.New("room is restricted")
	// ErrNameTooShort is returned for a room name below MinName.
	ErrNameTooShort = errors.New("room name too short")
	// ErrNameTooLong is returned for a room name of MaxName or more.
	ErrNameTooLong = errors.New("room name too long")
)

// ValidateName checks a room name for joining. The empty name is valid: it
// means leaving chat.
func ValidateName(name string) error {
	switch {
	case strings.EqualFold(name, restricted):
		return ErrRestricted
	case len(name) > 0 && len(name) < MinName:
		return ErrNameTooShort
	case len(name) >= MaxName:
		return ErrNameTooLong
	}
	return nil
}

// Room is a named set of sessions with a topic.
type Room struct {
	name    string
	topic   string
	members []*session.Session
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Topic returns the room topic.
func (r *Room) Topic() string { return r.topic }

// Len returns the number of members.
func (r *Room) Len() int { return len(r.members) }

// Members returns the members in join order.
func (r *Room) Members() []*session.Session {
	out := make([]*session.Session, len(r.members))
	copy(out, r.members)
	return out
}

// Usernames returns the member names in join order.
func (r *Room) Usernames() []string {
	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.Username()
	}
	return out
}

func (r *Room) indexOf(username string) int {
	for i, m := range r.members {
		if m.Username() == username {
			return i
		}
	}
	return -1
}

// Option configures a Registry.
type Option func(*Registry)

// LoggerOption sets the logger used to report failed deliveries.
func LoggerOption(logger logging.Logger) Option {
	return func(g *Registry) {
		g.logger = logger
	}
}

// Registry maps room names to rooms. Names are case-sensitive. Rooms are
// never deleted; an empty room behaves as if it did not exist.
type Registry struct {
	rooms  map[string]*Room
	logger logging.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	g := &Registry{
		rooms:  make(map[string]*Room),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ensure returns the room called name, creating it if needed.
func (g *Registry) Ensure(name string) (r *Room, created bool) {
	if r, ok := g.rooms[name]; ok {
		return r, false
	}
	r = &Room{name: name, topic: DefaultTopic}
	g.rooms[name] = r
	return r, true
}

// Find returns the room called name. A room without members is reported
// as ErrNotFound.
func (g *Registry) Find(name string) (*Room, error) {
	r, ok := g.rooms[name]
	if !ok || r.Len() == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return r, nil
}

// Join adds s to the room called name, creating the room if needed. The
// joiner first receives one UserAlreadyIn event per existing member, then
// every member, the joiner included, receives UserJoin. Joining a room the
// username is already in does not add it twice.
func (g *Registry) Join(name string, s *session.Session) *Room {
	r, _ := g.Ensure(name)

	if r.indexOf(s.Username()) < 0 {
		for _, m := range r.members {
			g.deliver(s, wire.EventUserAlreadyIn, m.Username(), "")
		}
		r.members = append(r.members, s)
	}

	g.broadcast(r, wire.EventUserJoin, s.Username(), "")
	return r
}

// Leave removes s from the room called name and tells the remaining members.
// It reports whether s was a member.
func (g *Registry) Leave(name string, s *session.Session) bool {
	r, ok := g.rooms[name]
	if !ok {
		return false
	}
	i := r.indexOf(s.Username())
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	g.broadcast(r, wire.EventUserLeave, s.Username(), "")
	return true
}

// Broadcast sends a chat event to every member of the room called name and
// returns how many deliveries succeeded.
func (g *Registry) Broadcast(name string, ev wire.EventID, from, text string) (int, error) {
	r, ok := g.rooms[name]
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return g.broadcast(r, ev, from, text), nil
}

// SetTopic changes the topic of the room called name and announces it.
func (g *Registry) SetTopic(name, topic, by string) error {
	r, err := g.Find(name)
	if err != nil {
		return err
	}
	if len(topic) > MaxTopic-1 {
		topic = topic[:MaxTopic-1]
	}
	r.topic = topic
	g.broadcast(r, wire.EventTopicChanged, by, topic)
	return nil
}

// Rooms returns the rooms that have members, sorted by name.
func (g *Registry) Rooms() []*Room {
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		if r.Len() > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (g *Registry) broadcast(r *Room, ev wire.EventID, from, text string) int {
	n := 0
	for _, m := range r.members {
		if g.deliver(m, ev, from, text) {
			n++
		}
	}
	return n
}

func (g *Registry) deliver(to *session.Session, ev wire.EventID, from, text string) bool {
	if err := to.SendEvent(ev, from, text); err != nil {
		g.logger.Warn("chat event not delivered", "to", to.String(), "event", ev.String(), "error", err)
		return false
	}
	return true
}
