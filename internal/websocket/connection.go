package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla connection behind the interfaces.Connection
// contract. All writes go through a single writer goroutine; gorilla
// connections do not allow concurrent writers.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex // guards role and sessionID
	role      string
	sessionID string
}

// NewConnection wraps conn and starts its writer goroutine. sendBuffer
// bounds the outbound queue; a full queue fails writes instead of blocking
// the sender on this connection's I/O.
func NewConnection(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the server-assigned connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// WriteJSON enqueues v for delivery. It never blocks on the peer: a closed
// connection returns ErrConnectionClosed and a full outbound queue returns
// ErrSendBufferFull, letting the caller drop the delivery.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the transport and stops the writer goroutine. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SetRole records the connection's one-shot registration.
func (c *Connection) SetRole(role, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.role = role
	c.sessionID = sessionID
	return nil
}

// Role returns the registered role, types.RoleUnset before registration.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SessionID returns the session the connection registered for.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Done is closed when the connection has been shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
