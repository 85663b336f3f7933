package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/response"
)

// ProjectMemberHandler provides CRUD endpoints for project members.
type ProjectMemberHandler struct {
	membership *services.MembershipService
}

func NewProjectMemberHandler(membership *services.MembershipService) *ProjectMemberHandler {
	return &ProjectMemberHandler{membership: membership}
}

// List returns all members of a project. Members only.
// GET /api/projects/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.membership.CapabilitiesOf(ctx, projectID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	members, err := h.membership.Members(ctx, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// Add adds a user to a project
// POST /api/projects/:id/members
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.membership.AddMember(c.Request.Context(), middleware.GetUserID(c), projectID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// Update changes a member's capability flags. Project creator only.
// PUT /api/projects/:id/members/:userID
func (h *ProjectMemberHandler) Update(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "userID")
	if !ok {
		return
	}

	var req services.UpdateCapabilitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.membership.UpdateCapabilities(c.Request.Context(), middleware.GetUserID(c), projectID, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

// Remove removes a member from a project. Project creator only.
// DELETE /api/projects/:id/members/:userID
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "userID")
	if !ok {
		return
	}

	if err := h.membership.RemoveMember(c.Request.Context(), middleware.GetUserID(c), projectID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
