package server

import (
	"slices"
	"strings"
	"sync"

	"github.com/npezzotti/gochat-relay/internal/types"
)

// Room holds the bounded message history of a single room. Membership is
// never stored here; it is derived from the Registry.
type Room struct {
	name string
	mu   sync.Mutex
	// buf is a ring of len(buf) slots; start indexes the oldest message.
	buf   []types.Message
	start int
	size  int
}

func newRoom(name string, limit int) *Room {
	return &Room{
		name: name,
		buf:  make([]types.Message, limit),
	}
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) append(msg types.Message) {
	if len(r.buf) == 0 {
		return
	}

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = msg
		r.size++
		return
	}

	// full: overwrite the oldest
	r.buf[r.start] = msg
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Room) history() []types.Message {
	out := make([]types.Message, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// RoomStore owns every room, keyed by its verbatim name.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	limit int
}

func NewRoomStore(limit int) *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*Room),
		limit: limit,
	}
}

// Ensure returns the named room, creating it if needed. created reports
// whether this call created it.
func (s *RoomStore) Ensure(name string) (room *Room, created bool) {
	s.mu.RLock()
	room, ok := s.rooms[name]
	s.mu.RUnlock()
	if ok {
		return room, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[name]; ok {
		return room, false
	}
	room = newRoom(name, s.limit)
	s.rooms[name] = room
	return room, true
}

func (s *RoomStore) get(name string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	return r, ok
}

// AppendMessage adds msg to the room's history, creating the room if needed.
func (s *RoomStore) AppendMessage(name string, msg types.Message) bool {
	return s.Publish(name, msg, nil)
}

// Publish appends msg and then runs deliver while still holding the room
// lock, so deliveries for one room happen in history order. It reports
// whether the room was created.
func (s *RoomStore) Publish(name string, msg types.Message, deliver func()) bool {
	room, created := s.Ensure(name)

	room.mu.Lock()
	defer room.mu.Unlock()

	room.append(msg)
	if deliver != nil {
		deliver()
	}
	return created
}

// WithHistory runs fn with a snapshot of the room's history while holding
// the room lock, creating the room if needed. It reports whether the room
// was created.
func (s *RoomStore) WithHistory(name string, fn func(history []types.Message)) bool {
	room, created := s.Ensure(name)

	room.mu.Lock()
	defer room.mu.Unlock()

	fn(room.history())
	return created
}

// ReadHistory returns the retained messages of the room, oldest first. An
// unknown room yields an empty slice and is not created.
func (s *RoomStore) ReadHistory(name string) []types.Message {
	room, ok := s.get(name)
	if !ok {
		return []types.Message{}
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return room.history()
}

// ListMembers returns the named sessions in the room, in join order.
func (s *RoomStore) ListMembers(name string, reg *Registry) []types.Member {
	var sessions []Session
	reg.ForEachInRoom(name, func(sess Session) {
		sessions = append(sessions, sess)
	})

	slices.SortFunc(sessions, func(a, b Session) int {
		switch {
		case a.joinSeq < b.joinSeq:
			return -1
		case a.joinSeq > b.joinSeq:
			return 1
		default:
			return strings.Compare(a.Id, b.Id)
		}
	})

	members := make([]types.Member, 0, len(sessions))
	for _, sess := range sessions {
		members = append(members, types.Member{ClientId: sess.Id, Username: sess.DisplayName})
	}
	return members
}

// Rooms describes every known room, sorted by name.
func (s *RoomStore) Rooms(reg *Registry) []types.RoomInfo {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	counts := make(map[string]int)
	for _, sess := range reg.Snapshot() {
		if sess.RoomName != "" && sess.DisplayName != "" {
			counts[sess.RoomName]++
		}
	}

	infos := make([]types.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, types.RoomInfo{
			Name:     r.name,
			Members:  counts[r.name],
			Messages: r.Len(),
		})
	}

	slices.SortFunc(infos, func(a, b types.RoomInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}
