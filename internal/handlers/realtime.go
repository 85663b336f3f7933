package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/realtime"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/logger"
	"github.com/huangang/teamspace/pkg/response"
)

// RealtimeHandler upgrades authenticated requests to websocket connections.
type RealtimeHandler struct {
	hub      *realtime.Hub
	events   realtime.EventHandler
	users    *services.UserService
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub *realtime.Hub, events realtime.EventHandler, users *services.UserService, allowedOrigins []string) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hub,
		events: events,
		users:  users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.OriginChecker(allowedOrigins),
		},
	}
}

// Serve runs the connection until it closes
// GET /ws?token=<jwt>
func (h *RealtimeHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if _, err := h.users.FindByID(c.Request.Context(), userID); err != nil {
		response.Unauthorized(c, "account not available")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn().Err(err).Uint("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	started := time.Now()
	client.Run(c.Request.Context(), h.events)

	logger.Info().
		Str("session_id", client.SessionID()).
		Uint("user_id", userID).
		Dur("duration", time.Since(started)).
		Msg("websocket session ended")
}

// Stats reports live connection counts
// GET /api/realtime/stats
func (h *RealtimeHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clients":   h.hub.ClientCount(),
		"user_room": h.hub.RoomSize(realtime.UserRoom(middleware.GetUserID(c))),
	})
}
