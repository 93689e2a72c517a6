package server

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/npezzotti/gochat-relay/internal/types"
)

// EventKind is the closed set of events a session reacts to.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoin
	EventMessage
	EventTyping
	EventLeave
	// EventDisconnect never arrives on the wire; the transport raises it
	// when a connection closes or fails.
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventMessage:
		return "message"
	case EventTyping:
		return "typing"
	case EventLeave:
		return "leave"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ParseEventKind maps an inbound "type" tag to its EventKind. Disconnect is
// not accepted from clients.
func ParseEventKind(tag string) EventKind {
	switch tag {
	case "join":
		return EventJoin
	case "message":
		return EventMessage
	case "typing":
		return EventTyping
	case "leave":
		return EventLeave
	default:
		return EventUnknown
	}
}

// ClientMessage is one inbound event. Keys match exactly. Field values are
// read leniently: a wrong-typed field is coerced or falls back to its
// default, and fields the event does not use are never inspected.
type ClientMessage struct {
	Type   string
	fields map[string]json.RawMessage
}

// ParseClientMessage decodes a raw payload. Only payloads that are not a
// JSON object (or null) are rejected.
func ParseClientMessage(raw []byte) (*ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	msg := &ClientMessage{fields: fields}
	if t, ok := fields["type"]; ok && jsonKind(t) == '"' {
		if err := json.Unmarshal(t, &msg.Type); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (m *ClientMessage) Kind() EventKind {
	return ParseEventKind(m.Type)
}

func (m *ClientMessage) GetUsername() string {
	return coerceString(m.fields["username"])
}

func (m *ClientMessage) GetRoom() string {
	return coerceString(m.fields["room"])
}

func (m *ClientMessage) GetText() string {
	return coerceString(m.fields["text"])
}

func (m *ClientMessage) GetIsTyping() bool {
	return truthy(m.fields["isTyping"])
}

// jsonKind returns the first byte of a JSON value, or 0 when absent.
func jsonKind(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// coerceString renders strings as is, true as "true" and non-zero numbers
// in plain decimal. Everything else, including false, 0, null, objects and
// arrays, reads as "".
func coerceString(raw json.RawMessage) string {
	switch jsonKind(raw) {
	case 0, 'f', 'n', '{', '[':
		return ""
	case 't':
		return "true"
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	default:
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil || f == 0 {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// truthy reports false for absent, null, false, 0 and "", true otherwise.
func truthy(raw json.RawMessage) bool {
	switch jsonKind(raw) {
	case 0, 'f', 'n':
		return false
	case 't', '{', '[':
		return true
	case '"':
		return coerceString(raw) != ""
	default:
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		return err == nil && f != 0
	}
}

const (
	TypeConnected  = "connected"
	TypeHistory    = "history"
	TypeUserJoined = "user-joined"
	TypeUsers      = "users"
	TypeMessage    = "message"
	TypeTyping     = "typing"
	TypeUserLeft   = "user-left"
)

type Connected struct {
	Type     string `json:"type"`
	ClientId string `json:"clientId"`
}

type History struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	History []types.Message `json:"history"`
}

type UserJoined struct {
	Type     string `json:"type"`
	ClientId string `json:"clientId"`
	Username string `json:"username"`
}

type Users struct {
	Type  string         `json:"type"`
	Users []types.Member `json:"users"`
}

type MessagePosted struct {
	Type    string        `json:"type"`
	Message types.Message `json:"message"`
}

type Typing struct {
	Type     string `json:"type"`
	ClientId string `json:"clientId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type UserLeft struct {
	Type     string `json:"type"`
	ClientId string `json:"clientId"`
	Username string `json:"username,omitempty"`
}

func NewConnected(clientId string) *Connected {
	return &Connected{Type: TypeConnected, ClientId: clientId}
}

func NewHistory(room string, history []types.Message) *History {
	if history == nil {
		history = []types.Message{}
	}
	return &History{Type: TypeHistory, Room: room, History: history}
}

func NewUserJoined(clientId, username string) *UserJoined {
	return &UserJoined{Type: TypeUserJoined, ClientId: clientId, Username: username}
}

func NewUsers(users []types.Member) *Users {
	if users == nil {
		users = []types.Member{}
	}
	return &Users{Type: TypeUsers, Users: users}
}

func NewMessagePosted(msg types.Message) *MessagePosted {
	return &MessagePosted{Type: TypeMessage, Message: msg}
}

func NewTyping(clientId, username string, isTyping bool) *Typing {
	return &Typing{Type: TypeTyping, ClientId: clientId, Username: username, IsTyping: isTyping}
}

func NewUserLeft(clientId, username string) *UserLeft {
	return &UserLeft{Type: TypeUserLeft, ClientId: clientId, Username: username}
}
