// Package gateway bridges the event bus to long-lived websocket
// connections. Each connection carries its own subscription set and a
// bounded outbox; a slow consumer drops its own oldest frames and never
// holds up the bus or its neighbors.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tabula/internal/domain"
	"tabula/internal/infra/bus"
)

const maxMessageBytes = 64 << 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type connection struct {
	id     string
	conn   Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once

	subsMu sync.Mutex
	subs   *subscriptionSet
}

type Gateway struct {
	bus          *bus.Bus
	log          *slog.Logger
	outboxSize   int
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[string]*connection
	unsub func()
}

func New(b *bus.Bus, log *slog.Logger, outboxSize int, writeTimeout time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if outboxSize <= 0 {
		outboxSize = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Gateway{
		bus:          b,
		log:          log,
		outboxSize:   outboxSize,
		writeTimeout: writeTimeout,
		conns:        make(map[string]*connection),
	}
}

// Start attaches the gateway to the bus. Calling it twice is a no-op.
func (g *Gateway) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsub != nil {
		return
	}
	g.unsub = g.bus.Subscribe(g.broadcast)
}

// Stop detaches from the bus and tears down every live connection.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if g.unsub != nil {
		g.unsub()
		g.unsub = nil
	}
	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.remove(id, "gateway stopped")
	}
}

func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Handler upgrades the request and serves the connection until the peer
// goes away.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			g.log.Error("websocket upgrade failed", "error", err)
			return
		}
		g.serve(ws)
	}
}

func (g *Gateway) serve(ws *websocket.Conn) {
	conn := g.register(newWSConn(ws, g.writeTimeout))
	go g.writePump(conn)

	ws.SetReadLimit(maxMessageBytes)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}
		g.handleClientMessage(conn, raw)
	}
	g.remove(conn.id, "client disconnected")
}

func (g *Gateway) register(c Conn) *connection {
	conn := &connection{
		id:     uuid.NewString(),
		conn:   c,
		outbox: make(chan []byte, g.outboxSize),
		done:   make(chan struct{}),
		subs:   newSubscriptionSet(),
	}
	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()

	g.log.Info("websocket client connected", "connection_id", conn.id)
	g.enqueueFrame(conn, serverFrame{Type: frameConnected, ConnectionID: conn.id})
	return conn
}

// remove releases a connection's registry entry exactly once; later calls
// for the same id are no-ops.
func (g *Gateway) remove(id, reason string) {
	g.mu.Lock()
	conn, ok := g.conns[id]
	if ok {
		delete(g.conns, id)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	conn.once.Do(func() { close(conn.done) })
	_ = conn.conn.Close()
	g.log.Info("websocket connection closed", "connection_id", id, "reason", reason)
}

func (g *Gateway) writePump(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbox:
			if err := c.conn.Send(data); err != nil {
				g.log.Warn("websocket write failed", "connection_id", c.id, "error", err)
				g.remove(c.id, "write failed")
				return
			}
		}
	}
}

func (g *Gateway) handleClientMessage(c *connection, raw []byte) {
	msg, err := parseClientMessage(raw)
	if err != nil {
		g.enqueueFrame(c, serverFrame{Type: frameError, Message: err.Error()})
		return
	}

	switch msg.Type {
	case msgSubscribe:
		c.subsMu.Lock()
		c.subs.subscribe(msg.Events)
		c.subsMu.Unlock()
	case msgUnsubscribe:
		c.subsMu.Lock()
		c.subs.unsubscribe(msg.Events)
		c.subsMu.Unlock()
	case msgPing:
		g.enqueueFrame(c, serverFrame{Type: framePong})
	}
}

// broadcast fans one bus event out to every subscribed connection. The
// frame is marshaled once and enqueued without blocking.
func (g *Gateway) broadcast(evt domain.ServerEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		g.log.Error("marshal event frame", "event_type", evt.Type, "error", err)
		return
	}

	g.mu.Lock()
	conns := make([]*connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.subsMu.Lock()
		wants := c.subs.matches(string(evt.Type))
		c.subsMu.Unlock()
		if wants {
			g.enqueue(c, data)
		}
	}
}

func (g *Gateway) enqueueFrame(c *connection, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		g.log.Error("marshal server frame", "frame_type", frame.Type, "error", err)
		return
	}
	g.enqueue(c, data)
}

// enqueue never blocks: when the outbox is full the oldest frame is
// dropped to make room, and if the writer races us the newest frame goes
// instead.
func (g *Gateway) enqueue(c *connection, data []byte) {
	select {
	case c.outbox <- data:
		return
	default:
	}
	select {
	case <-c.outbox:
	default:
	}
	select {
	case c.outbox <- data:
	default:
		g.log.Debug("outbox full, frame dropped", "connection_id", c.id)
	}
}
