package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/response"
)

func init() {
	response.Register(services.ErrNotAMember, response.NewForbidden("not a member of this project"))
	response.Register(services.ErrCapabilityDenied, response.NewForbidden("permission denied"))
	response.Register(services.ErrInvalidContent, response.NewBadRequest("content must not be empty"))
	response.Register(services.ErrInvalidTitle, response.NewBadRequest("title must be non-empty text without control characters"))
	response.Register(services.ErrMessageNotFound, response.NewNotFound("message not found"))
	response.Register(services.ErrProjectNotFound, response.NewNotFound("project not found"))
	response.Register(services.ErrUserNotFound, response.NewNotFound("user not found"))
	response.Register(services.ErrNotificationNotFound, response.NewNotFound("notification not found"))
	response.Register(services.ErrAlreadyMember, response.NewConflict("user is already a member of this project"))
}

// paramID parses a positive numeric path parameter, writing a 400 on failure.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
