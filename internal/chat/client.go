package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/ConnorWiseman/taka/internal/metrics"
	"github.com/ConnorWiseman/taka/internal/perm"
	"github.com/ConnorWiseman/taka/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// identity is the mutable per-connection session state. It is written by
// the connection's own pipeline and read or rewritten by identity-transition
// fan-outs running on other connections' goroutines, hence the lock around
// it in Client.
type identity struct {
	SessionID string
	UserID    *bson.ObjectID
	Username  string
	Role      perm.Role
	Avatar    string
	URL       string
}

// Client is one websocket connection: the context every pipeline stage
// enriches and every event handler operates on.
type Client struct {
	ID string

	srv  *Server
	conn *websocket.Conn
	send chan []byte
	ctx  context.Context

	limiter *ratelimit.Limiter

	// Handshake-derived, fixed for the connection lifetime.
	rawSessionID string
	ipString     string
	ip           uint32

	mu       sync.Mutex
	id       identity
	presence bool
	closed   bool
}

// Identity returns a copy of the connection's session state.
func (c *Client) Identity() identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) setIdentity(id identity) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *Client) Role() perm.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id.Role
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id.Username
}

func (c *Client) can(action string) bool {
	return perm.Can(c.Role(), action)
}

// isStaff reports whether the connection carries moderation privileges,
// which controls IP visibility on message projections.
func (c *Client) isStaff() bool {
	return perm.IsStaff(c.Role())
}

func (c *Client) sessionPayload() sessionPayload {
	id := c.Identity()
	return sessionPayload{
		ID:       id.SessionID,
		Role:     string(id.Role),
		Username: id.Username,
		Avatar:   id.Avatar,
		URL:      id.URL,
	}
}

// emit queues one event for this connection.
func (c *Client) emit(event string, data interface{}) {
	c.trySend(marshal(event, data))
}

// trySend queues a payload without blocking. A connection that cannot keep
// up with its send buffer is closed. The closed check and the channel send
// happen under one lock: hub broadcasts run on other connections'
// goroutines, and a send racing a concurrent close would panic.
func (c *Client) trySend(payload []byte) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("instance", c.ID).Msg("send buffer full, dropping connection")
		c.closeLocked()
	}
}

// close shuts the send channel exactly once. The write pump flushes what is
// already queued, then sends a close frame and tears down the socket, which
// in turn unblocks the read pump.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handle is the inbound event gate. Every event is checked against the
// permission matrix before its handler runs; events without permission are
// dropped silently so probing reveals nothing about valid actions. Returns
// false when the connection must be dropped: a banned role can only ever
// have received its ban notice, so any further inbound traffic means the
// client ignored it.
func (c *Client) handle(env Envelope) bool {
	if c.Role() == perm.RoleBanned {
		return false
	}
	binding, ok := c.srv.dispatch[env.Event]
	if !ok || !c.can(binding.permission) {
		return true
	}
	metrics.EventsTotal.WithLabelValues(env.Event).Inc()
	binding.fn(c.ctx, c, env.Data)
	return true
}

// readPump decodes inbound frames and runs each through the gate.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		if !c.handle(env) {
			c.close()
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
