package wire

import "fmt"

// Code identifies the type of a packet.
type Code uint8

// Packet codes. The numeric values are part of the wire format.
const (
	// CodeNull is the keepalive packet. It carries no fields and may be sent
	// by either side.
	CodeNull Code = iota
	// CodeClientInfo is the first packet a client sends.
	CodeClientInfo
	// CodeServerInfo answers CodeClientInfo with the server token.
	CodeServerInfo
	// CodeLogin carries the login proof and username.
	CodeLogin
	// CodeLoginResponse answers CodeLogin.
	CodeLoginResponse
	// CodeCreate asks the server to create an account.
	CodeCreate
	// CodeCreateResponse answers CodeCreate.
	CodeCreateResponse
	// CodeRequestRoomList asks for the members of a room.
	CodeRequestRoomList
	// CodeRoomList answers CodeRequestRoomList.
	CodeRoomList
	// CodeChatCommand carries a line typed by the user.
	CodeChatCommand
	// CodeChatEvent is a chat event delivered to a client.
	CodeChatEvent
	// CodeError describes a packet the receiver could not accept.
	CodeError
)

var codeNames = [...]string{
	CodeNull:            "SID_NULL",
	CodeClientInfo:      "SID_CLIENT_INFORMATION",
	CodeServerInfo:      "SID_SERVER_INFORMATION",
	CodeLogin:           "SID_LOGIN",
	CodeLoginResponse:   "SID_LOGIN_RESPONSE",
	CodeCreate:          "SID_CREATE",
	CodeCreateResponse:  "SID_CREATE_RESPONSE",
	CodeRequestRoomList: "SID_REQUEST_ROOM_LIST",
	CodeRoomList:        "SID_ROOM_LIST",
	CodeChatCommand:     "SID_CHATCOMMAND",
	CodeChatEvent:       "SID_CHATEVENT",
	CodeError:           "SID_ERROR",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("SID_0x%02X", uint8(c))
}

// Known reports whether c is one of the defined packet codes.
func (c Code) Known() bool {
	return int(c) < len(codeNames)
}

// ServerOnly reports whether c is only ever sent by the server.
func (c Code) ServerOnly() bool {
	switch c {
	case CodeServerInfo, CodeLoginResponse, CodeCreateResponse, CodeRoomList, CodeChatEvent:
		return true
	}
	return false
}

// EventID is the subtype of a chat event.
type EventID uint32

// Chat event subtypes.
const (
	// EventUserJoin: a user joined the room you are in.
	EventUserJoin EventID = iota
	// EventUserAlreadyIn: a user was already in the room you just joined.
	EventUserAlreadyIn
	// EventUserLeave: a user left the room you are in.
	EventUserLeave
	// EventTopicChanged: the room topic changed.
	EventTopicChanged
	// EventInfo is an informational message.
	EventInfo
	// EventError is an error message.
	EventError
	// EventTalk: a user talked.
	EventTalk
	// EventChannelChanged acknowledges a join; the text is the new room,
	// empty when the user left chat.
	EventChannelChanged
	// EventWhisperTo echoes an outgoing whisper to its sender.
	EventWhisperTo
	// EventWhisperFrom delivers an incoming whisper.
	EventWhisperFrom
)

var eventNames = [...]string{
	EventUserJoin:       "USER_JOIN",
	EventUserAlreadyIn:  "USER_IN_CHANNEL",
	EventUserLeave:      "USER_LEAVE",
	EventTopicChanged:   "TOPIC_CHANGED",
	EventInfo:           "INFO",
	EventError:          "ERROR",
	EventTalk:           "TALK",
	EventChannelChanged: "CHANNEL",
	EventWhisperTo:      "WHISPER_TO",
	EventWhisperFrom:    "WHISPER_FROM",
}

func (e EventID) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("EID_%d", uint32(e))
}
