package server

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 256
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

type ClientOptions struct {
	MaxMessageSize int64
	// RateLimit is the allowed inbound events per second; zero disables it.
	RateLimit float64
	RateBurst int
}

// Client adapts a WebSocket connection to Conn. Read and Write must each
// run on their own goroutine.
type Client struct {
	id             string
	conn           *websocket.Conn
	chatServer     *ChatServer
	log            *log.Logger
	send           chan []byte
	stop           chan struct{}
	stopOnce       sync.Once
	open           atomic.Bool
	limiter        *rate.Limiter
	maxMessageSize int64
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger, opts ClientOptions) *Client {
	c := &Client{
		conn:           conn,
		chatServer:     cs,
		log:            l,
		send:           make(chan []byte, sendBuffer),
		stop:           make(chan struct{}),
		maxMessageSize: opts.MaxMessageSize,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}
	c.open.Store(true)

	return c
}

func (c *Client) Id() string {
	return c.id
}

// Start registers the client with the chat server and starts its pumps.
func (c *Client) Start() error {
	id, err := c.chatServer.Connect(c)
	if err != nil {
		c.stopClient()
		c.conn.Close()
		return err
	}
	c.id = id

	go c.Write()
	go c.Read()
	return nil
}

func (c *Client) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Close stops the client; the write pump sends a close frame and releases
// the connection.
func (c *Client) Close() error {
	c.stopClient()
	return nil
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		c.open.Store(false)
		close(c.stop)
	})
}

// allow reports whether another inbound event fits the rate limit.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.sendMessage(websocket.TextMessage, msg) {
				c.stopClient()
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				c.stopClient()
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.stopClient()
		c.conn.Close()
		c.chatServer.Disconnect(c.id)
	}()

	if c.maxMessageSize > 0 {
		c.conn.SetReadLimit(c.maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read %q: %v", c.id, err)
			}
			return
		}

		if !c.allow() {
			c.log.Printf("rate limit exceeded for %q, dropping event", c.id)
			continue
		}

		c.chatServer.HandleMessage(c.id, raw)
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
