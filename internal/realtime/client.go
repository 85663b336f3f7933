package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/huangang/teamspace/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	eventTimeout   = 15 * time.Second
)

// clientIDCounter orders clients for deterministic broadcast.
var clientIDCounter atomic.Uint64

// EventHandler consumes a client's inbound events in arrival order.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, env Envelope)
	HandleDisconnect(c *Client, err error)
}

// Client is one websocket connection. A reconnect is always a new Client.
type Client struct {
	id        uint64
	sessionID string
	userID    uint
	hub       *Hub
	conn      *websocket.Conn
	send      chan Event

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

// NewClient wraps an upgraded connection for the authenticated userID.
func NewClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		sessionID: uuid.NewString(),
		userID:    userID,
		hub:       hub,
		conn:      conn,
		send:      make(chan Event, hub.sendBuffer),
		rooms:     make(map[string]struct{}),
	}
}

// SessionID is a random id for correlating one connection's log lines.
func (c *Client) SessionID() string { return c.sessionID }

// Run adds the client to the hub and pumps events until the connection
// closes. It blocks; the caller's goroutine becomes the read pump.
func (c *Client) Run(ctx context.Context, handler EventHandler) {
	c.hub.Add(c)
	go c.writePump()
	err := c.readPump(ctx, handler)
	handler.HandleDisconnect(c, err)
	_ = c.conn.Close()
}

func (c *Client) readPump(ctx context.Context, handler EventHandler) error {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Work already started is not abandoned when the socket drops.
	base := context.WithoutCancel(ctx)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("discarding malformed frame")
			c.hub.SendTo(c, EventChatError, ChatError{Message: "Malformed event"})
			continue
		}

		evCtx, cancel := context.WithTimeout(base, eventTimeout)
		handler.HandleEvent(evCtx, c, env)
		cancel()
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
		case ev, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Str("type", ev.Type).Msg("failed to encode websocket event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
