package testutil

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

var ErrConnClosed = errors.New("connection closed")

// FakeConn records every payload sent to it.
type FakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	SendErr error
}

func (c *FakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Events decodes every recorded payload into a generic map.
func (c *FakeConn) Events(t *testing.T) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, raw := range c.Sent() {
		var ev map[string]any
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("failed to decode sent payload %q: %v", raw, err)
		}
		events = append(events, ev)
	}
	return events
}

// EventsOfType returns the recorded events whose "type" equals typ.
func (c *FakeConn) EventsOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range c.Events(t) {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
