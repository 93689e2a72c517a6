package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the server-side state of a single connection. Values handed out
// by the Registry are copies; mutate sessions only through Registry methods.
type Session struct {
	Id           string
	DisplayName  string
	RoomName     string
	LastActivity time.Time
	conn         Conn
	// joinSeq orders room rosters by join time.
	joinSeq uint64
}

// Joined reports whether the session has both a name and a room.
func (s Session) Joined() bool {
	return s.DisplayName != "" && s.RoomName != ""
}

func (s Session) Conn() Conn {
	return s.conn
}

// Registry owns every live session, keyed by session id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
	newId    func() string
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newId:    uuid.NewString,
		now:      time.Now,
	}
}

// Register stores a new session for c and returns its id.
func (r *Registry) Register(c Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newId()
	r.sessions[id] = &Session{
		Id:           id,
		LastActivity: r.now(),
		conn:         c,
	}

	return id
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove deletes the session and returns its last state. Removing an absent
// id returns false.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// Join sets the session's name and room and returns the state it had before.
func (r *Registry) Join(id, name, room string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}

	prev := *s
	r.seq++
	s.DisplayName = name
	s.RoomName = room
	s.joinSeq = r.seq
	s.LastActivity = r.now()

	return prev, true
}

// Leave clears the session's room and returns the state it had before.
// It reports false when the session is unknown or not in a room.
func (r *Registry) Leave(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.RoomName == "" {
		return Session{}, false
	}

	prev := *s
	s.RoomName = ""
	s.LastActivity = r.now()

	return prev, true
}

// Touch records activity on the session and returns its current state.
func (r *Registry) Touch(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	s.LastActivity = r.now()
	return *s, true
}

// ForEachInRoom calls fn for every named session in room. fn runs under the
// registry read lock and must not call back into the Registry's mutators.
func (r *Registry) ForEachInRoom(room string, fn func(Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.RoomName == room && s.DisplayName != "" {
			fn(*s)
		}
	}
}

// Snapshot returns a copy of every session.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
