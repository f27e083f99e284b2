package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"zchat-signal/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

// conn is the server side of a session channel. Frames are queued on send
// and written by a single writePump goroutine, so per-channel order is the
// order in which Send was called.
type conn struct {
	id     string
	userID int64
	ws     *websocket.Conn
	logger *slog.Logger

	send      chan protocol.Frame
	done      chan struct{}
	closeOnce sync.Once

	// calls started or accepted on this channel. Only the read goroutine
	// touches it.
	calls []string
}

func newConn(ws *websocket.Conn, userID int64, buffer int, logger *slog.Logger) *conn {
	id := uuid.NewString()
	return &conn{
		id:     id,
		userID: userID,
		ws:     ws,
		logger: logger.With("channel_id", id, "user_id", userID),
		send:   make(chan protocol.Frame, buffer),
		done:   make(chan struct{}),
	}
}

func (c *conn) ID() string    { return c.id }
func (c *conn) UserID() int64 { return c.userID }

// Send never blocks. A full queue means the peer stopped reading; the
// channel is closed and the frame is refused.
func (c *conn) Send(f protocol.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		c.logger.Warn("send queue full, closing slow channel", "event", f.Type)
		c.Close()
		return false
	}
}

func (c *conn) own(callID string) {
	c.calls = append(c.calls, callID)
}

func (c *conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
