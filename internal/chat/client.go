package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohamedkhairy/chat-server/internal/models"
)

// Client represents one live WebSocket connection authenticated to a username
type Client struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Send     chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
	lastPong  time.Time
	createdAt time.Time
}

// NewClient creates a new client for an upgraded connection
func NewClient(id string, username string, conn *websocket.Conn, sendBuffer int) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:        id,
		Username:  username,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
		lastPong:  time.Now(),
	}
}

// enqueue queues an outbound frame without blocking.
// A full buffer or a closed connection is reported to the caller so the
// broadcast path can isolate the failure to this connection.
func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return models.ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return models.ErrConnectionClosed
	default:
		return models.ErrSendBufferFull
	}
}

// SendErrorEvent sends an error event to this connection only, best-effort
func (c *Client) SendErrorEvent(code string, message string) error {
	data, err := newErrorEvent(code, message)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// UpdateLastPong updates the last pong time
func (c *Client) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Client) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close closes the connection. Safe to call more than once; the send
// channel is never closed so concurrent broadcasts cannot panic, the
// write pump exits via the context instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Done exposes the connection's close signal
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}
