package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/response"
)

type ProjectHandler struct {
	projects   *services.ProjectService
	membership *services.MembershipService
}

func NewProjectHandler(projects *services.ProjectService, membership *services.MembershipService) *ProjectHandler {
	return &ProjectHandler{projects: projects, membership: membership}
}

// List returns the projects the caller belongs to
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, projects)
}

// GetByID returns a project the caller belongs to
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.membership.CapabilitiesOf(ctx, id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	project, err := h.projects.GetByID(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// Create creates a project owned by the caller
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projects.Create(c.Request.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}
