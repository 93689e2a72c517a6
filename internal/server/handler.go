package server

import (
	"github.com/npezzotti/gochat-relay/internal/stats"
	"github.com/npezzotti/gochat-relay/internal/types"
)

// HandleMessage interprets one raw inbound payload from session id.
// Unparseable payloads are dropped.
func (cs *ChatServer) HandleMessage(id string, raw []byte) {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		cs.log.Printf("dropping malformed message from %q: %v", id, err)
		return
	}

	cs.handleEvent(id, msg.Kind(), msg)
}

func (cs *ChatServer) handleEvent(id string, kind EventKind, msg *ClientMessage) {
	if kind == EventDisconnect {
		cs.handleDisconnect(id)
		return
	}

	sess, ok := cs.registry.Touch(id)
	if !ok {
		return
	}

	switch kind {
	case EventJoin:
		cs.handleJoin(sess, msg)
	case EventMessage:
		cs.handleChatMessage(sess, msg)
	case EventTyping:
		cs.handleTyping(sess, msg)
	case EventLeave:
		cs.handleLeave(sess)
	case EventUnknown, EventDisconnect:
	}
}

func (cs *ChatServer) handleJoin(sess Session, msg *ClientMessage) {
	name := msg.GetUsername()
	if name == "" {
		name = defaultName
	}
	name = truncate(name, maxNameLength)

	room := msg.GetRoom()
	if room == "" {
		room = defaultRoom
	}
	room = truncate(room, maxRoomLength)

	var (
		prev   Session
		joined bool
	)
	// Registering and snapshotting history under the room lock keeps a
	// concurrent message from being both replayed and delivered.
	created := cs.rooms.WithHistory(room, func(history []types.Message) {
		prev, joined = cs.registry.Join(sess.Id, name, room)
		if joined {
			cs.broadcaster.Unicast(sess.conn, NewHistory(room, history))
		}
	})
	if created {
		cs.stats.Incr(stats.NumRooms)
	}
	if !joined {
		return
	}

	if prev.RoomName != "" && prev.RoomName != room {
		cs.notifyLeft(prev, prev.Id)
	}

	cs.log.Printf("%q joined room %q as %q", sess.Id, room, name)
	cs.broadcaster.Broadcast(room, NewUserJoined(sess.Id, name), sess.Id)
	cs.broadcaster.Broadcast(room, NewUsers(cs.rooms.ListMembers(room, cs.registry)), "")
}

func (cs *ChatServer) handleChatMessage(sess Session, msg *ClientMessage) {
	if !sess.Joined() {
		return
	}

	text := msg.GetText()
	if text == "" {
		return
	}
	if cs.maxTextLength > 0 {
		text = truncate(text, cs.maxTextLength)
	}

	m := types.Message{
		Id:       cs.newMessageId(),
		ClientId: sess.Id,
		Username: sess.DisplayName,
		Text:     text,
		Ts:       cs.now().UnixMilli(),
	}

	created := cs.rooms.Publish(sess.RoomName, m, func() {
		cs.broadcaster.Broadcast(sess.RoomName, NewMessagePosted(m), "")
	})
	if created {
		cs.stats.Incr(stats.NumRooms)
	}
	cs.stats.Incr(stats.NumMessages)
}

func (cs *ChatServer) handleTyping(sess Session, msg *ClientMessage) {
	if !sess.Joined() {
		return
	}

	cs.broadcaster.Broadcast(sess.RoomName, NewTyping(sess.Id, sess.DisplayName, msg.GetIsTyping()), sess.Id)
}

func (cs *ChatServer) handleLeave(sess Session) {
	if !sess.Joined() {
		return
	}

	prev, ok := cs.registry.Leave(sess.Id)
	if !ok {
		return
	}

	cs.log.Printf("%q left room %q", prev.Id, prev.RoomName)
	cs.notifyLeft(prev, prev.Id)
}

func (cs *ChatServer) handleDisconnect(id string) {
	sess, ok := cs.registry.Remove(id)
	if !ok {
		return
	}

	cs.stats.Decr(stats.NumActiveClients)
	cs.log.Printf("client %q disconnected, %d active", id, cs.registry.Len())

	if sess.RoomName != "" {
		cs.notifyLeft(sess, "")
	}
}

// notifyLeft tells the members of the session's former room that it left
// and sends them the refreshed roster.
func (cs *ChatServer) notifyLeft(former Session, exclude string) {
	cs.broadcaster.Broadcast(former.RoomName, NewUserLeft(former.Id, former.DisplayName), exclude)
	cs.broadcaster.Broadcast(former.RoomName, NewUsers(cs.rooms.ListMembers(former.RoomName, cs.registry)), "")
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
