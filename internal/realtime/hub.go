package realtime

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/pkg/logger"
)

const defaultSendBuffer = 256

// UserRoom is the personal room for userID.
func UserRoom(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// ProjectRoom is the shared room for projectID.
func ProjectRoom(projectID uint) string {
	return strconv.FormatUint(uint64(projectID), 10)
}

// Broadcaster lets collaborators outside the chat core, such as task
// management, emit events to a project room.
type Broadcaster interface {
	BroadcastToProject(projectID uint, eventType string, data interface{})
}

// Hub maps live clients to rooms.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	sendBuffer int

	backplane      Backplane
	backplaneReady atomic.Bool
}

func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
	}
}

// UseBackplane routes room broadcasts through bp once RunWithContext has
// subscribed. Call before RunWithContext.
func (h *Hub) UseBackplane(bp Backplane) {
	h.backplane = bp
}

// RunWithContext keeps the backplane subscription alive and closes every
// client when ctx ends.
func (h *Hub) RunWithContext(ctx context.Context) error {
	if h.backplane != nil {
		go func() {
			err := h.backplane.Subscribe(ctx, func() {
				h.backplaneReady.Store(true)
				logger.Info().Msg("realtime backplane subscribed")
			}, h.deliverFrame)
			h.backplaneReady.Store(false)
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("realtime backplane subscription ended; falling back to local delivery")
			}
		}()
	}

	<-ctx.Done()

	count := h.ClientCount()
	h.closeAllClients()
	logger.Info().
		Str("component", "realtime-hub").
		Int("clients_closed", count).
		Msg("realtime hub stopped")
	return ctx.Err()
}

// Add tracks a freshly connected client. It joins no rooms.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	logger.Debug().
		Str("session_id", c.sessionID).
		Uint("user_id", c.userID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

// Register joins the client to userID's personal room. Repeated calls are no-ops.
func (h *Hub) Register(c *Client, userID uint) {
	h.join(c, UserRoom(userID))
}

// JoinProject grants broadcast visibility only; write actions are checked per event.
func (h *Hub) JoinProject(c *Client, projectID uint) {
	h.join(c, ProjectRoom(projectID))
}

func (h *Hub) LeaveProject(c *Client, projectID uint) {
	h.leave(c, ProjectRoom(projectID))
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Disconnect removes the client from every room and closes its send channel.
// It is safe to call more than once.
func (h *Hub) Disconnect(c *Client, err error) DisconnectKind {
	kind := ClassifyDisconnect(err)

	h.mu.Lock()
	alreadyClosed := c.closed
	if !alreadyClosed {
		h.removeLocked(c)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if alreadyClosed {
		return kind
	}

	event := logger.Debug()
	if kind == DisconnectUnexpected {
		event = logger.Warn().Err(err)
	}
	event.
		Str("session_id", c.sessionID).
		Uint("user_id", c.userID).
		Str("kind", string(kind)).
		Int("total_clients", total).
		Msg("websocket client disconnected")
	return kind
}

func (h *Hub) removeLocked(c *Client) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
}

// BroadcastToRoom delivers an event to every connection in room.
func (h *Hub) BroadcastToRoom(room, eventType string, data interface{}) {
	h.emit(room, Event{Type: eventType, Data: data})
}

func (h *Hub) BroadcastToProject(projectID uint, eventType string, data interface{}) {
	h.BroadcastToRoom(ProjectRoom(projectID), eventType, data)
}

// PushToUser reports whether the event left this process towards at least
// one connection. With a backplane that means the publish succeeded.
func (h *Hub) PushToUser(userID uint, eventType string, data interface{}) bool {
	return h.emit(UserRoom(userID), Event{Type: eventType, Data: data})
}

// PushNotification sends receiveNotification to userID's personal room.
func (h *Hub) PushNotification(userID uint, n *models.Notification) bool {
	return h.PushToUser(userID, EventReceiveNotification, n)
}

// SendTo delivers an event to a single connection. It never goes through
// the backplane.
func (h *Hub) SendTo(c *Client, eventType string, data interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- Event{Type: eventType, Data: data}:
		return true
	default:
		h.dropSlowLocked(c)
		return false
	}
}

func (h *Hub) emit(room string, ev Event) bool {
	if h.backplane != nil && h.backplaneReady.Load() {
		payload, err := json.Marshal(backplaneFrame{Room: room, Type: ev.Type, Data: ev.Data})
		if err == nil {
			if err = h.backplane.Publish(context.Background(), payload); err == nil {
				return true
			}
		}
		logger.Warn().Err(err).Str("room", room).Msg("backplane publish failed, delivering locally")
	}
	return h.deliverLocal(room, ev) > 0
}

func (h *Hub) deliverFrame(payload []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Room == "" {
		logger.Warn().Err(err).Msg("discarding malformed backplane frame")
		return
	}
	h.deliverLocal(frame.Room, Event{Type: frame.Type, Data: frame.Data})
}

// deliverLocal sends ev to the room's clients in id order and drops any
// client whose buffer is full.
func (h *Hub) deliverLocal(room string, ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[room]
	if len(members) == 0 {
		return 0
	}
	clients := make([]*Client, 0, len(members))
	for c := range members {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	delivered := 0
	for _, c := range clients {
		select {
		case c.send <- ev:
			delivered++
		default:
			h.dropSlowLocked(c)
		}
	}
	return delivered
}

func (h *Hub) dropSlowLocked(c *Client) {
	logger.Warn().
		Str("session_id", c.sessionID).
		Uint("user_id", c.userID).
		Msg("websocket send buffer full, dropping client")
	h.removeLocked(c)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	for _, c := range clients {
		h.removeLocked(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of local connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms c has joined, sorted.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}
