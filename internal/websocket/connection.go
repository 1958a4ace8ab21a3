package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coursechat/pkg/types"
)

// Connection wraps one upgraded WebSocket. All writes are serialized
// through a single writer goroutine fed by a bounded queue; Deliver never
// blocks, so a stalled peer can only fill its own queue and get dropped,
// never delay a publisher.
type Connection struct {
	id     string
	ws     *websocket.Conn
	user   *types.User
	sendCh chan []byte

	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *slog.Logger
}

// NewConnection wraps an upgraded socket for the given identity and starts
// the writer goroutine. queueSize bounds the per-connection send queue.
func NewConnection(ws *websocket.Conn, user *types.User, queueSize int, writeTimeout time.Duration, log *slog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.NewString(),
		ws:           ws,
		user:         user,
		sendCh:       make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}

	go c.writeLoop()

	return c
}

// ID returns the registry handle id for this connection.
func (c *Connection) ID() string { return c.id }

// User returns the authenticated identity on this connection.
func (c *Connection) User() *types.User { return c.user }

// Done is closed when the connection shuts down.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// writeLoop is the single writer for the underlying socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed, closing connection",
					"conn", c.id, "user_id", c.user.ID, "error", err)
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Deliver enqueues one outbound frame without blocking. A full queue means
// the peer is not draining; the caller (the registry) drops the connection.
func (c *Connection) Deliver(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// DeliverJSON marshals and enqueues a frame for this connection only.
func (c *Connection) DeliverJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Deliver(data)
}

// Close tears the connection down. Idempotent; also cancels the pending
// read in the receive loop.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}
