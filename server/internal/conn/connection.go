// Package conn tracks live client connections per library.
package conn

import (
	"errors"
	"sync"
	"time"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
)

var (
	// ErrClosed is returned when sending to a connection whose transport is gone.
	ErrClosed = errors.New("connection closed")
	// ErrQueueFull is returned when a connection's outbound queue is saturated.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrDuplicate is returned when (libraryId, clientId) is already connected.
	ErrDuplicate = errors.New("client already connected to library")
)

// DefaultQueueSize is the outbound queue length used when none is configured.
const DefaultQueueSize = 64

// RemoteInfo describes the transport peer.
type RemoteInfo struct {
	Addr      string `json:"addr"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Connection is one client attached to one library. The outbound queue is
// drained by the transport's writer; Done is closed when the connection closes.
type Connection struct {
	libraryID   string
	clientID    string
	remote      RemoteInfo
	connectedAt time.Time

	mu           sync.Mutex
	status       spi.ConnStatus
	lastActivity time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a Connecting connection with an outbound queue of queueSize frames.
func New(libraryID, clientID string, remote RemoteInfo, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	now := time.Now()
	c := &Connection{
		libraryID:    libraryID,
		clientID:     clientID,
		remote:       remote,
		connectedAt:  now,
		status:       spi.StatusConnecting,
		lastActivity: now,
		out:          make(chan []byte, queueSize),
		done:         make(chan struct{}),
	}
	metrics.ConnectionStatusChanged("", spi.StatusConnecting)
	return c
}

func (c *Connection) LibraryID() string      { return c.libraryID }
func (c *Connection) ClientID() string       { return c.clientID }
func (c *Connection) RemoteAddr() string     { return c.remote.Addr }
func (c *Connection) Remote() RemoteInfo     { return c.remote }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Status returns the lifecycle state.
func (c *Connection) Status() spi.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastActivity returns the time of the last inbound or outbound frame.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Touch records frame activity.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Activate moves a Connecting connection to Active. It reports whether the
// transition happened.
func (c *Connection) Activate() bool {
	c.mu.Lock()
	if c.status != spi.StatusConnecting {
		c.mu.Unlock()
		return false
	}
	c.status = spi.StatusActive
	c.mu.Unlock()
	metrics.ConnectionStatusChanged(spi.StatusConnecting, spi.StatusActive)
	return true
}

// Close marks the connection Closed and releases its writer. Only the first
// call returns true.
func (c *Connection) Close() bool {
	closed := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.status
		c.status = spi.StatusClosed
		c.mu.Unlock()
		close(c.done)
		metrics.ConnectionStatusChanged(prev, spi.StatusClosed)
		closed = true
	})
	return closed
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Outbound is the queue of encoded frames waiting for the transport writer.
func (c *Connection) Outbound() <-chan []byte { return c.out }

// Enqueue queues an encoded frame without blocking.
func (c *Connection) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- frame:
		c.Touch()
		return nil
	default:
		return ErrQueueFull
	}
}

// Info is a point-in-time copy of a connection's metadata.
type Info struct {
	LibraryID      string         `json:"libraryId"`
	ClientID       string         `json:"clientId"`
	Status         spi.ConnStatus `json:"status"`
	ConnectedAt    time.Time      `json:"connectedAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	Remote         RemoteInfo     `json:"remote"`
	Queued         int            `json:"queued"`
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		LibraryID:      c.libraryID,
		ClientID:       c.clientID,
		Status:         c.status,
		ConnectedAt:    c.connectedAt,
		LastActivityAt: c.lastActivity,
		Remote:         c.remote,
		Queued:         len(c.out),
	}
}
