package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the narrow transport surface the gateway drives. The concrete
// websocket library stays behind this interface.
type Conn interface {
	Send(data []byte) error
	Close() error
	Closed() bool
}

// wsConn adapts a gorilla connection. Sends carry a write deadline so a
// stalled peer cannot wedge the writer goroutine forever.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closed       atomic.Bool
	closeOnce    sync.Once
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	err := c.ws.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		c.closed.Store(true)
	}
	return err
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) Closed() bool {
	return c.closed.Load()
}
