package server

import (
	"errors"
	"math"
	"testing"

	"github.com/npezzotti/gochat-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_Broadcast(t *testing.T) {
	type member struct {
		name    string
		room    string
		closed  bool
		sendErr error
	}

	tcases := []struct {
		name         string
		members      []member
		exclude      string
		wantReceived map[string]int
		wantCount    int
	}{
		{
			name: "broadcast to whole room",
			members: []member{
				{name: "alice", room: "main"},
				{name: "bob", room: "main"},
			},
			wantReceived: map[string]int{"alice": 1, "bob": 1},
			wantCount:    2,
		},
		{
			name: "exclude sender",
			members: []member{
				{name: "alice", room: "main"},
				{name: "bob", room: "main"},
			},
			exclude:      "alice",
			wantReceived: map[string]int{"alice": 0, "bob": 1},
			wantCount:    1,
		},
		{
			name: "other rooms are isolated",
			members: []member{
				{name: "alice", room: "main"},
				{name: "carol", room: "other"},
			},
			wantReceived: map[string]int{"alice": 1, "carol": 0},
			wantCount:    1,
		},
		{
			name: "closed connections are skipped",
			members: []member{
				{name: "alice", room: "main"},
				{name: "bob", room: "main", closed: true},
			},
			wantReceived: map[string]int{"alice": 1, "bob": 0},
			wantCount:    1,
		},
		{
			name: "send failure does not abort the broadcast",
			members: []member{
				{name: "alice", room: "main", sendErr: errors.New("buffer full")},
				{name: "bob", room: "main"},
			},
			wantReceived: map[string]int{"alice": 0, "bob": 1},
			wantCount:    1,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			b := NewBroadcaster(reg, testutil.TestLogger(t))

			conns := make(map[string]*testutil.FakeConn)
			ids := make(map[string]string)
			for _, m := range tc.members {
				conn := &testutil.FakeConn{SendErr: m.sendErr}
				if m.closed {
					conn.Close()
				}
				id := reg.Register(conn)
				reg.Join(id, m.name, m.room)
				conns[m.name] = conn
				ids[m.name] = id
			}

			exclude := ""
			if tc.exclude != "" {
				exclude = ids[tc.exclude]
			}

			count := b.Broadcast("main", NewUserJoined("x", "x"), exclude)
			assert.Equal(t, tc.wantCount, count)

			for name, want := range tc.wantReceived {
				assert.Len(t, conns[name].Sent(), want, "unexpected deliveries for %s", name)
			}
			assert.Equal(t, len(tc.members), reg.Len(), "expected broadcast never to remove sessions")
		})
	}
}

func TestBroadcaster_SerializesOnce(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testutil.TestLogger(t))

	a := &testutil.FakeConn{}
	c := &testutil.FakeConn{}
	reg.Join(reg.Register(a), "alice", "main")
	reg.Join(reg.Register(c), "carol", "main")

	b.Broadcast("main", NewTyping("x", "x", true), "")
	assert.Equal(t, a.Sent()[0], c.Sent()[0])
}

func TestBroadcaster_MarshalError(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testutil.TestLogger(t))
	conn := &testutil.FakeConn{}
	reg.Join(reg.Register(conn), "alice", "main")

	assert.Equal(t, 0, b.Broadcast("main", math.Inf(1), ""))
	assert.Empty(t, conn.Sent())
}

func TestBroadcaster_Unicast(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), testutil.TestLogger(t))

	open := &testutil.FakeConn{}
	assert.True(t, b.Unicast(open, NewConnected("c1")))
	assert.Len(t, open.Sent(), 1)

	closed := &testutil.FakeConn{}
	closed.Close()
	assert.False(t, b.Unicast(closed, NewConnected("c1")))

	failing := &testutil.FakeConn{SendErr: errors.New("boom")}
	assert.False(t, b.Unicast(failing, NewConnected("c1")))

	assert.False(t, b.Unicast(nil, NewConnected("c1")))
}
