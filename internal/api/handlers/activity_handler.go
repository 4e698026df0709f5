package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Marga-Ghale/powerline-backend/internal/api/middleware"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/gin-gonic/gin"
)

// ============================================
// Activity Handler
// ============================================

// ActivityHandler serves the queue audit trail
type ActivityHandler struct {
	activitySvc service.ActivityService
}

type activityQuery func(ctx context.Context, limit int) ([]*repository.Activity, error)

// list reads ?limit= and writes the query result. The service clamps the limit.
func (h *ActivityHandler) list(c *gin.Context, query activityQuery) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	activities, err := query(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponseList(activities))
}

// GetMyActivities lists the caller's own queue events
func (h *ActivityHandler) GetMyActivities(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	h.list(c, func(ctx context.Context, limit int) ([]*repository.Activity, error) {
		return h.activitySvc.GetUserActivities(ctx, userID, limit)
	})
}

// GetFeed lists the newest events across the whole queue
func (h *ActivityHandler) GetFeed(c *gin.Context) {
	h.list(c, h.activitySvc.RecentFeed)
}

// GetPositionActivities lists the audit trail of one position
func (h *ActivityHandler) GetPositionActivities(c *gin.Context) {
	position, ok := paramPosition(c)
	if !ok {
		return
	}
	entityID := strconv.FormatInt(position, 10)
	h.list(c, func(ctx context.Context, limit int) ([]*repository.Activity, error) {
		return h.activitySvc.GetEntityActivities(ctx, types.EntityPowerLinePosition, entityID, limit)
	})
}
