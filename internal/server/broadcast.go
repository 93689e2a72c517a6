package server

import (
	"encoding/json"
	"log"
)

// Broadcaster fans payloads out to the members of a room. It only reads the
// Registry; closed connections are skipped, never removed.
type Broadcaster struct {
	registry *Registry
	log      *log.Logger
}

func NewBroadcaster(reg *Registry, logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		log:      logger,
	}
}

// Broadcast delivers payload to every member of room except the session
// with id exclude (pass "" to exclude nobody). It returns the number of
// connections the payload was handed to.
func (b *Broadcaster) Broadcast(room string, payload any, exclude string) int {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Printf("broadcast to room %q: marshal: %v", room, err)
		return 0
	}

	delivered := 0
	b.registry.ForEachInRoom(room, func(s Session) {
		if s.Id == exclude {
			return
		}
		if s.conn == nil || !s.conn.IsOpen() {
			return
		}
		if err := s.conn.Send(data); err != nil {
			b.log.Printf("broadcast to %q in room %q: %v", s.Id, room, err)
			return
		}
		delivered++
	})

	return delivered
}

// Unicast delivers payload to a single connection.
func (b *Broadcaster) Unicast(c Conn, payload any) bool {
	if c == nil || !c.IsOpen() {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Printf("unicast: marshal: %v", err)
		return false
	}

	if err := c.Send(data); err != nil {
		b.log.Printf("unicast: %v", err)
		return false
	}
	return true
}
