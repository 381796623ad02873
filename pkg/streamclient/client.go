// Package streamclient is the consuming half of the event stream protocol:
// it dials the gateway, filters by subscription, and replays its
// subscription set after every reconnect because the server keeps no state
// for departed connections. Events published while the client is away are
// lost by contract; durable consumers reconcile through pull queries.
package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tabula/internal/domain"
)

// State describes the client's view of the connection.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

var (
	ErrClosed       = errors.New("stream client closed")
	ErrNotConnected = errors.New("stream client not connected")
)

const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"

	frameConnected = "connected"
	framePong      = "pong"
	frameError     = "error"
)

// clientFrame mirrors the gateway's inbound message shape. A nil Events
// pointer means the field is absent, which the server reads as "all" on
// subscribe and "none" on unsubscribe.
type clientFrame struct {
	Type   string    `json:"type"`
	Events *[]string `json:"events,omitempty"`
}

// serverFrame is the superset of control frames and event frames; the Type
// field decides which half applies.
type serverFrame struct {
	Type         string         `json:"type"`
	ConnectionID string         `json:"connectionId"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload"`
	Timestamp    time.Time      `json:"timestamp"`
}

type Options struct {
	// OnEvent receives every domain event that passes the subscription
	// filter. It runs on the read goroutine, so it must not block.
	OnEvent func(domain.ServerEvent)
	// OnStateChange, when set, observes connection state transitions.
	OnStateChange func(State)

	// ReconnectInterval is the fixed pause before each redial attempt.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds the redial loop; once exhausted the
	// client reports StateDisconnected and stays down.
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration

	Logger *slog.Logger
}

// Client is a reconnecting consumer of one stream endpoint. It is safe for
// concurrent use.
type Client struct {
	url  string
	opts Options
	log  *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
	connID string

	// Client-side mirror of the server's subscription set, replayed on
	// reconnect. all means no explicit set has been sent.
	all  bool
	subs map[string]struct{}

	pongs chan struct{}
}

// Dial connects to a stream endpoint (ws:// or wss:// URL) and starts
// reading. The returned client is already receiving; events arrive on
// opts.OnEvent.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		url:   url,
		opts:  opts,
		log:   log,
		state: StateConnected,
		all:   true,
		pongs: make(chan struct{}, 1),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// Subscribe narrows delivery to the named event types, adding to any
// explicit set already sent. With no arguments it restores the default
// deliver-everything mode.
func (c *Client) Subscribe(events ...string) error {
	frame := clientFrame{Type: msgSubscribe}
	if len(events) > 0 {
		list := append([]string(nil), events...)
		frame.Events = &list
	}
	if err := c.send(frame); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if frame.Events == nil {
		c.all = true
		c.subs = nil
		return nil
	}
	if c.all {
		c.all = false
		c.subs = make(map[string]struct{}, len(events))
	} else if c.subs == nil {
		c.subs = make(map[string]struct{}, len(events))
	}
	for _, e := range events {
		c.subs[e] = struct{}{}
	}
	return nil
}

// Unsubscribe removes the named event types from an explicit set. With no
// arguments it silences delivery entirely.
func (c *Client) Unsubscribe(events ...string) error {
	frame := clientFrame{Type: msgUnsubscribe}
	if len(events) > 0 {
		list := append([]string(nil), events...)
		frame.Events = &list
	}
	if err := c.send(frame); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if frame.Events == nil {
		c.all = false
		c.subs = make(map[string]struct{})
		return nil
	}
	if c.all {
		// No explicit set to remove from.
		return nil
	}
	for _, e := range events {
		delete(c.subs, e)
	}
	return nil
}

// Ping sends a keepalive frame; the server answers with a pong.
func (c *Client) Ping() error {
	return c.send(clientFrame{Type: msgPing})
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID reports the server-assigned id of the current connection,
// empty until the greeting frame arrives.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Close tears the connection down and stops any reconnect loop. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(StateClosed)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) send(frame clientFrame) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleFrame(raw)
	}
	_ = conn.Close()

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connID = ""
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.reconnect()
}

func (c *Client) handleFrame(raw []byte) {
	var frame serverFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Warn("stream frame dropped", "error", err)
		return
	}

	switch frame.Type {
	case frameConnected:
		c.mu.Lock()
		c.connID = frame.ConnectionID
		c.mu.Unlock()
	case framePong:
		select {
		case c.pongs <- struct{}{}:
		default:
		}
	case frameError:
		c.log.Warn("stream server rejected message", "message", frame.Message)
	case "":
		c.log.Warn("stream frame missing type")
	default:
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(domain.ServerEvent{
				Type:      domain.EventType(frame.Type),
				Payload:   frame.Payload,
				Timestamp: frame.Timestamp,
			})
		}
	}
}

// reconnect redials on a fixed interval. The subscription replay happens
// before the new connection is published, so no caller can observe a
// connection the server still treats as subscribed-to-all.
func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(c.opts.ReconnectInterval)
		if c.isClosed() {
			return
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.Warn("stream reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		if err := c.replaySubscriptions(conn); err != nil {
			c.log.Warn("stream resubscribe failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.setState(StateConnected)
		c.log.Info("stream reconnected", "attempt", attempt)
		go c.readLoop(conn)
		return
	}

	c.setState(StateDisconnected)
	c.log.Error("stream gave up reconnecting", "attempts", c.opts.MaxReconnectAttempts)
}

func (c *Client) replaySubscriptions(conn *websocket.Conn) error {
	c.mu.Lock()
	all := c.all
	events := make([]string, 0, len(c.subs))
	for e := range c.subs {
		events = append(events, e)
	}
	c.mu.Unlock()

	// A fresh connection already delivers everything.
	if all {
		return nil
	}
	sort.Strings(events)
	data, err := json.Marshal(clientFrame{Type: msgSubscribe, Events: &events})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}
