package handlers

import (
	"errors"
	"net/http"

	"github.com/Marga-Ghale/powerline-backend/internal/api/middleware"
	"github.com/Marga-Ghale/powerline-backend/internal/models"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// User Handler
// ============================================

type UserHandler struct {
	userService     service.UserService
	positionService service.PositionService
}

// GetCurrentUser returns the caller's profile. Callers that already hold a
// position also get its number and status, so clients can skip the enroll
// screen without a second request.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	resp := models.CurrentUserResponse{UserResponse: toUserResponse(user)}

	p, err := h.positionService.GetPosition(ctx, userID)
	switch {
	case errors.Is(err, service.ErrNotFound):
	case err != nil:
		handleServiceError(c, err)
		return
	default:
		resp.Position = &p.Position
		resp.FormattedPosition = powerline.FormattedPosition(p.Position)
		resp.PositionStatus = p.Status
	}

	c.JSON(http.StatusOK, resp)
}
