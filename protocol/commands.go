package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/account"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/room"
	"github.com/Zereker/cattlechat/session"
	"github.com/Zereker/cattlechat/wire"
)

type command struct {
	names       []string
	usage       string
	description string
	run         func(h *Handler, s *session.Session, param string)
}

var (
	// commands in the order /help lists them.
	commands     []*command
	commandIndex map[string]*command
)

// The table is built in init because the help command reads it.
func init() {
	commands = []*command{
		{
			names:       []string{"help", "h", "?"},
			usage:       "/help [command]",
			description: "If no command parameter is specified, /help displays the list of commands.  If a parameter is given, it will attempt to find help on the specified command and display it (much like this...).",
			run:         (*Handler).help,
		},
		{
			names:       []string{"w", "whisper", "m", "msg"},
			usage:       "/w <user> <message>",
			description: "Attempts to send the given message to the requested user.  The user can be anywhere, in or out of chat, as long as he is logged in.  If he's not logged in, an error is displayed.",
			run:         (*Handler).whisper,
		},
		{
			names:       []string{"join", "channel"},
			usage:       "/join [channel]",
			description: "If the channel parameter is given, it joins the specified channel.  The channel is created if it doesn't already exist.  If no parameter is given, it leaves chat.  This is create channel, join channel, and leave chat all rolled up into one.",
			run:         (*Handler).join,
		},
		{
			names:       []string{"rooms", "channels"},
			usage:       "/rooms",
			description: "Lists all rooms, and the number of users in each of them.",
			run:         (*Handler).listRooms,
		},
		{
			names:       []string{"who", "list"},
			usage:       "/who <channel>",
			description: "Gets the username and ip for everybody in the requested channel.",
			run:         (*Handler).who,
		},
		{
			names:       []string{"finger", "whois", "whereis"},
			usage:       "/finger <user>",
			description: "Gets the ip and current location for the requested user.",
			run:         (*Handler).finger,
		},
		{
			names:       []string{"topic"},
			usage:       "/topic [text]",
			description: "Shows the topic of the channel you are in.  If text is given, it becomes the new topic and everybody in the channel is told.",
			run:         (*Handler).topic,
		},
	}

	commandIndex = make(map[string]*command)
	for _, c := range commands {
		for _, n := range c.names {
			commandIndex[n] = c
		}
	}
}

func lookupCommand(name string) (*command, bool) {
	c, ok := commandIndex[strings.ToLower(name)]
	return c, ok
}

// chatCommand handles a typed line: a /command, or talk for the current room.
func (h *Handler) chatCommand(s *session.Session, text string) {
	if strings.HasPrefix(text, "/") {
		name, param, _ := strings.Cut(text[1:], " ")
		c, ok := lookupCommand(name)
		if !ok {
			h.fail(s, "Unknown command; type /help for a command listing")
			return
		}
		c.run(h, s, param)
		return
	}

	name := s.Room()
	if name == "" {
		h.fail(s, "You can only send chat if you're in a room")
		return
	}
	if !fits(&wire.ChatEvent{Event: wire.EventTalk, Username: s.Username(), Text: text}) {
		h.fail(s, "Message too long")
		return
	}
	if _, err := h.rooms.Broadcast(name, wire.EventTalk, s.Username(), text); err != nil {
		h.logger.Error("talk in a missing room", "peer", s.String(), "room", name, "error", err)
		return
	}
	h.sink.ChatEvent(name, wire.EventTalk, s.Username(), text)
}

func (h *Handler) help(s *session.Session, param string) {
	if param == "" {
		names := make([]string, len(commands))
		for i, c := range commands {
			names[i] = "/" + c.names[0]
		}
		h.info(s, "Here is a list of some of the commands, maybe all:")
		h.info(s, strings.Join(names, ", "))
		return
	}

	c, ok := lookupCommand(strings.TrimPrefix(param, "/"))
	if !ok {
		h.fail(s, "Unknown command; type /help for a command listing")
		return
	}

	aliases := make([]string, len(c.names))
	for i, n := range c.names {
		aliases[i] = "/" + n
	}
	h.info(s, "Command: "+c.names[0])
	h.info(s, "Usage: "+c.usage)
	h.info(s, "Aliases: "+strings.Join(aliases, ", "))
	h.info(s, c.description)
}

func (h *Handler) whisper(s *session.Session, param string) {
	target, message, ok := strings.Cut(param, " ")
	if !ok {
		h.fail(s, "Usage: /w <user> <message>")
		return
	}

	to, found := h.sessions.Find(target)
	if !found {
		h.fail(s, "User not logged on")
		return
	}
	if !fits(&wire.ChatEvent{Event: wire.EventWhisperFrom, Username: s.Username(), Text: message}) {
		h.fail(s, "Message too long")
		return
	}

	h.send(to, &wire.ChatEvent{Event: wire.EventWhisperFrom, Username: s.Username(), Text: message})
	h.send(s, &wire.ChatEvent{Event: wire.EventWhisperTo, Username: to.Username(), Text: message})
}

var joinFailures = []struct {
	err  error
	text string
}{
	{room.ErrRestricted, "Sorry, that room is restricted"},
	{room.ErrNameTooShort, "Sorry, the name of that room is too short"},
	{room.ErrNameTooLong, "Sorry, the name of that room is too long"},
}

func (h *Handler) join(s *session.Session, param string) {
	if err := room.ValidateName(param); err != nil {
		for _, f := range joinFailures {
			if errors.Is(err, f.err) {
				h.fail(s, f.text)
				break
			}
		}
		h.sink.Notify(notify.Error, "user failed to join channel", "peer", s.String(), "room", param, "reason", err.Error())
		return
	}

	if old := s.Room(); old != "" {
		h.rooms.Leave(old, s)
		h.sink.ChatEvent(old, wire.EventUserLeave, s.Username(), "")
		s.SetRoom("")
	}

	if param == "" {
		h.info(s, "Leaving chat")
		h.sink.Notify(notify.Notice, "user has left chat", "peer", s.String())
		h.send(s, &wire.ChatEvent{Event: wire.EventChannelChanged, Username: s.Username()})
		s.SetState(session.Authenticated)
		return
	}

	if _, created := h.rooms.Ensure(param); created {
		h.info(s, "Creating new channel for you")
		h.sink.Notify(notify.Notice, "channel didn't exist, creating", "room", param)
	}
	h.send(s, &wire.ChatEvent{Event: wire.EventChannelChanged, Username: s.Username(), Text: param})
	h.sink.Notify(notify.Notice, "user joined channel", "peer", s.String(), "room", param)

	s.SetRoom(param)
	s.SetState(session.InRoom)
	h.rooms.Join(param, s)
	h.sink.ChatEvent(param, wire.EventUserJoin, s.Username(), "")
}

func (h *Handler) listRooms(s *session.Session, param string) {
	if param != "" {
		h.fail(s, "Usage: /rooms")
		return
	}

	h.info(s, "Here is the list of channels")
	for _, r := range h.rooms.Rooms() {
		h.info(s, fmt.Sprintf("%s <%d users>", r.Name(), r.Len()))
	}
}

func (h *Handler) who(s *session.Session, param string) {
	if param == "" {
		h.fail(s, "Usage: /who <room>")
		return
	}

	r, err := h.rooms.Find(param)
	if err != nil {
		h.fail(s, "Room not found.  If you were searching for a user, not a room, please use /whois <username>")
		return
	}

	h.info(s, fmt.Sprintf("Users in room %s:", param))
	for _, m := range r.Members() {
		h.info(s, fmt.Sprintf("%s <%s>", m.Username(), m.IP()))
	}
}

func (h *Handler) finger(s *session.Session, param string) {
	if param == "" {
		h.fail(s, "Usage: /finger <user>")
		return
	}

	target, ok := h.sessions.Find(param)
	if !ok {
		h.fail(s, "Sorry, that isn't isn't logged on")
		return
	}

	where := target.Room()
	if where == "" {
		where = "<not in chat>"
	}
	h.info(s, fmt.Sprintf("User %s is connected from %s and is in the channel %s.", target.Username(), target.IP(), where))
}

func topicLine(room, topic string) string {
	return fmt.Sprintf("Topic for %s: %s", room, topic)
}

func (h *Handler) topic(s *session.Session, param string) {
	name := s.Room()
	if name == "" {
		h.fail(s, "You can only use /topic if you're in a room")
		return
	}

	if param == "" {
		r, err := h.rooms.Find(name)
		if err != nil {
			h.logger.Error("topic of a missing room", "peer", s.String(), "room", name, "error", err)
			return
		}
		h.info(s, topicLine(name, r.Topic()))
		return
	}

	// The topic is later read back inside an Info line to any member.
	readBack := &wire.ChatEvent{Event: wire.EventInfo, Username: strings.Repeat("x", account.MaxName), Text: topicLine(name, param)}
	if !fits(&wire.ChatEvent{Event: wire.EventTopicChanged, Username: s.Username(), Text: param}) || !fits(readBack) {
		h.fail(s, "Topic too long")
		return
	}
	if err := h.rooms.SetTopic(name, param, s.Username()); err != nil {
		h.logger.Error("topic of a missing room", "peer", s.String(), "room", name, "error", err)
		return
	}
	h.sink.ChatEvent(name, wire.EventTopicChanged, s.Username(), param)
}
