package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/gochat-relay/internal/config"
	"github.com/npezzotti/gochat-relay/internal/stats"
	"github.com/npezzotti/gochat-relay/internal/types"
	"github.com/teris-io/shortid"
)

const (
	maxNameLength = 32
	maxRoomLength = 64
	defaultName   = "Anon"
	defaultRoom   = "main"
)

var ErrServerClosed = errors.New("chat server closed")

// ChatServer owns the connection registry, the room store and the
// broadcaster, and interprets inbound events for every session.
type ChatServer struct {
	log           *log.Logger
	registry      *Registry
	rooms         *RoomStore
	broadcaster   *Broadcaster
	stats         stats.StatsProvider
	maxTextLength int
	newMessageId  func() string
	now           func() time.Time

	lifecycle sync.RWMutex
	closed    bool
}

func NewChatServer(logger *log.Logger, cfg *config.Config, su stats.StatsProvider) (*ChatServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", cfg.HistoryLimit)
	}

	registry := NewRegistry()
	cs := &ChatServer{
		log:           logger,
		registry:      registry,
		rooms:         NewRoomStore(cfg.HistoryLimit),
		broadcaster:   NewBroadcaster(registry, logger),
		stats:         su,
		maxTextLength: cfg.MaxTextLength,
		now:           time.Now,
	}
	cs.newMessageId = cs.generateMessageId

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumRooms)
	su.RegisterMetric(stats.NumMessages)

	return cs, nil
}

func (cs *ChatServer) generateMessageId() string {
	id, err := shortid.Generate()
	if err != nil {
		cs.log.Printf("shortid: %v, falling back to uuid", err)
		return uuid.NewString()
	}
	return id
}

// Connect registers c, greets it with its session id and returns the id.
func (cs *ChatServer) Connect(c Conn) (string, error) {
	cs.lifecycle.RLock()
	defer cs.lifecycle.RUnlock()

	if cs.closed {
		return "", ErrServerClosed
	}

	id := cs.registry.Register(c)
	cs.stats.Incr(stats.NumActiveClients)
	cs.log.Printf("client %q connected, %d active", id, cs.registry.Len())

	cs.broadcaster.Unicast(c, NewConnected(id))
	return id, nil
}

// Disconnect runs the disconnect path for the session. Calling it more than
// once for the same id is a no-op.
func (cs *ChatServer) Disconnect(id string) {
	cs.handleEvent(id, EventDisconnect, nil)
}

func (cs *ChatServer) Rooms() []types.RoomInfo {
	return cs.rooms.Rooms(cs.registry)
}

func (cs *ChatServer) History(room string) []types.Message {
	return cs.rooms.ReadHistory(room)
}

func (cs *ChatServer) Members(room string) []types.Member {
	return cs.rooms.ListMembers(room, cs.registry)
}

func (cs *ChatServer) NumClients() int {
	return cs.registry.Len()
}

// Shutdown stops accepting connections, closes every live connection and
// runs its disconnect path.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.lifecycle.Lock()
	if cs.closed {
		cs.lifecycle.Unlock()
		return nil
	}
	cs.closed = true
	cs.lifecycle.Unlock()

	sessions := cs.registry.Snapshot()
	cs.log.Printf("closing %d connections", len(sessions))

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("chat server shutdown: %w", err)
		}

		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				cs.log.Printf("close %q: %v", s.Id, err)
			}
		}
		cs.Disconnect(s.Id)
	}

	return nil
}
