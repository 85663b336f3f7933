package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/response"
)

// MessageHandler serves chat history. Writes happen over the websocket.
type MessageHandler struct {
	membership *services.MembershipService
	messages   *services.MessageStore
	reactions  *services.ReactionLedger
}

func NewMessageHandler(membership *services.MembershipService, messages *services.MessageStore, reactions *services.ReactionLedger) *MessageHandler {
	return &MessageHandler{membership: membership, messages: messages, reactions: reactions}
}

// List returns a project's messages in creation order
// GET /api/projects/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.membership.CapabilitiesOf(ctx, projectID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	messages, err := h.messages.ListByProject(ctx, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, messages)
}

// Reactions returns the aggregated reactions of one message
// GET /api/projects/:id/messages/:messageID/reactions
func (h *MessageHandler) Reactions(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	messageID, ok := paramID(c, "messageID")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.membership.CapabilitiesOf(ctx, projectID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	msg, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if msg.ProjectID != projectID {
		response.Error(c, services.ErrMessageNotFound)
		return
	}

	reactions, err := h.reactions.Aggregate(ctx, messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if reactions == nil {
		reactions = []services.ReactionSummary{}
	}
	response.Success(c, gin.H{"messageId": messageID, "reactions": reactions})
}
