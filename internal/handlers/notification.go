package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/response"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, newest first
// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	var req services.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.notifications.ListForUser(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// MarkRead marks one of the caller's notifications as read
// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkAllRead marks every unread notification of the caller as read
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"updated": updated})
}
