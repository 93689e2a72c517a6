package server

// Conn is a live transport connection that delivers discrete messages.
type Conn interface {
	// Send queues data for delivery. It must not block.
	Send(data []byte) error
	// IsOpen reports whether the connection can still accept messages.
	IsOpen() bool
	Close() error
}
