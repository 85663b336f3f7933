package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/huangang/teamspace/internal/realtime"
	"github.com/huangang/teamspace/internal/services"
)

// HealthHandler reports the state of the subsystems chat depends on.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *realtime.Hub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "teamspace",
		"components": gin.H{
			"database":          dbStatus,
			"queue_mode":        queueMode,
			"websocket_clients": h.hub.ClientCount(),
		},
	})
}
