package realtime

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/huangang/teamspace/internal/services"
)

// Inbound event types.
const (
	EventRegister       = "register"
	EventJoinProject    = "joinProject"
	EventLeaveProject   = "leaveProject"
	EventSendMessage    = "sendMessage"
	EventToggleReaction = "toggleReaction"
	EventPing           = "ping"
)

// Outbound event types.
const (
	EventReceiveMessage      = "receiveMessage"
	EventChatError           = "chatError"
	EventReactionsUpdated    = "reactionsUpdated"
	EventReceiveNotification = "receiveNotification"
	EventPong                = "pong"

	// Emitted by task management through BroadcastToProject.
	EventTaskCreated = "taskCreated"
	EventTaskUpdated = "taskUpdated"
	EventTaskDeleted = "taskDeleted"
)

// Event is an outbound frame.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Envelope is an inbound frame; Data is decoded by the handler for Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ID is an entity id inside an inbound payload. Like decodeID it accepts a
// number or a numeric string; null and absent fields decode to zero.
type ID uint

func (id *ID) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*id = 0
		return nil
	}
	n, err := parseID(raw)
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

type SendMessagePayload struct {
	ProjectID ID     `json:"projectId"`
	SenderID  ID     `json:"senderId"`
	Content   string `json:"content"`
}

type ToggleReactionPayload struct {
	MessageID ID     `json:"messageId"`
	UserID    ID     `json:"userId"`
	Emoji     string `json:"emoji"`
	ProjectID ID     `json:"projectId"`
}

// ReceiveMessage is a persisted message plus the sender's display name.
type ReceiveMessage struct {
	ID         uint      `json:"id"`
	ProjectID  uint      `json:"project_id"`
	SenderID   uint      `json:"sender_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	SenderName string    `json:"sender_name"`
}

type ChatError struct {
	Message string `json:"message"`
}

type ReactionsUpdated struct {
	MessageID uint                       `json:"messageId"`
	Reactions []services.ReactionSummary `json:"reactions"`
}

var errInvalidID = errors.New("invalid id")

// decodeID accepts a bare number, a numeric string or an object carrying
// one of keys, so register(7), register("7") and register({"userId":7})
// are all valid.
func decodeID(raw json.RawMessage, keys ...string) (uint, error) {
	if len(raw) == 0 {
		return 0, errInvalidID
	}

	if n, err := parseID(raw); err == nil {
		return checkID(n)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range keys {
			if v, ok := obj[key]; ok {
				return decodeID(v)
			}
		}
	}
	return 0, errInvalidID
}

// parseID reads a bare number or a numeric string. Zero is allowed here.
func parseID(raw []byte) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errInvalidID
		}
		return n, nil
	}
	return 0, errInvalidID
}

func checkID(n uint64) (uint, error) {
	if n == 0 {
		return 0, errInvalidID
	}
	return uint(n), nil
}

// DisconnectKind separates ordinary transport closures from everything else.
// It only affects logging; cleanup is identical.
type DisconnectKind string

const (
	DisconnectExpected   DisconnectKind = "expected"
	DisconnectUnexpected DisconnectKind = "unexpected"
)

// ClassifyDisconnect maps the error that ended a read loop to a DisconnectKind.
func ClassifyDisconnect(err error) DisconnectKind {
	if err == nil {
		return DisconnectExpected
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return DisconnectExpected
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return DisconnectExpected
	}
	return DisconnectUnexpected
}
