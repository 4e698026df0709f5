package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/api/middleware"
	"github.com/Marga-Ghale/powerline-backend/internal/models"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// PowerLine Handler
// ============================================

var enrollNextSteps = []string{
	"Contact your sponsor to learn about the opportunity",
	"Share your PowerLine invitation with others",
	"Watch the queue grow behind you",
}

type PowerLineHandler struct {
	positionService service.PositionService
}

// QueueStatus returns the live queue summary
func (h *PowerLineHandler) QueueStatus(c *gin.Context) {
	status, err := h.positionService.QueueStatus(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.QueueStatusResponse{
		TotalPositions:  status.TotalPositions,
		RecentAdditions: status.RecentAdditions,
		QueueSample:     toPositionSummaries(status.QueueSample, time.Now().UTC()),
		GeneratedAt:     status.GeneratedAt,
	})
}

func (h *PowerLineHandler) Tree(c *gin.Context) {
	start, ok := paramPosition(c)
	if !ok {
		return
	}
	levels, ok := queryInt(c, "levels", 3)
	if !ok {
		return
	}

	tree, err := h.positionService.TreeRange(c.Request.Context(), start, levels)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTreeResponse(tree))
}

func (h *PowerLineHandler) GrowthFeed(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	positions, err := h.positionService.GrowthFeed(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	now := time.Now().UTC()
	feed := make([]models.GrowthFeedItem, len(positions))
	for i, p := range positions {
		feed[i] = models.GrowthFeedItem{
			Position: p.Position,
			Name:     p.DisplayName,
			TimeAgo:  powerline.TimeAgo(p.JoinedAt, now),
			Status:   p.Status,
		}
	}

	stats := models.GrowthFeedStats{TotalShowing: len(feed)}
	if len(feed) > 0 {
		stats.NewestPosition = feed[0].Position
		stats.OldestPosition = feed[len(feed)-1].Position
	}
	c.JSON(http.StatusOK, models.GrowthFeedResponse{GrowthFeed: feed, Stats: stats})
}

func (h *PowerLineHandler) PositionStats(c *gin.Context) {
	position, ok := paramPosition(c)
	if !ok {
		return
	}

	stats, err := h.positionService.QueueStats(c.Request.Context(), position)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQueueStatsResponse(stats))
}

func (h *PowerLineHandler) Nearby(c *gin.Context) {
	position, ok := paramPosition(c)
	if !ok {
		return
	}
	radius, ok := queryInt(c, "radius", 5)
	if !ok {
		return
	}

	positions, err := h.positionService.NearbyWindow(c.Request.Context(), position, radius)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPositionSummaries(positions, time.Now().UTC()))
}

// MyPosition returns the caller's dashboard. A caller without a position
// gets hasPosition=false rather than a 404.
func (h *PowerLineHandler) MyPosition(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	view, err := h.positionService.MyPosition(c.Request.Context(), userID)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusOK, models.MyPositionResponse{HasPosition: false})
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	now := time.Now().UTC()
	position := toPositionResponse(view.Position, now)
	response := models.MyPositionResponse{
		HasPosition: true,
		Position:    &position,
		QueueInfo:   toQueueStatsResponse(view.Stats),
		Nearby:      toPositionSummaries(view.Nearby, now),
		TreePath:    powerline.TreePath(view.Position.Position),
	}
	if view.Sponsor != nil {
		response.Sponsor = &models.SponsorResponse{
			ID:    view.Sponsor.ID,
			Name:  view.Sponsor.Name,
			Email: view.Sponsor.Email,
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *PowerLineHandler) Enroll(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	// every field is optional, so an empty body is a valid request
	var req models.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	p, err := h.positionService.Enroll(c.Request.Context(), service.EnrollRequest{
		UserID:       userID,
		SponsorID:    req.SponsorID,
		DisplayName:  req.DisplayName,
		Source:       req.Source,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	})
	if errors.Is(err, service.ErrDuplicateUserPosition) && p != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "You already have a PowerLine position",
			"code":     "duplicate_user_position",
			"position": p.Position,
		})
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.EnrollResponse{
		Position:  toPositionResponse(p, time.Now().UTC()),
		Message:   fmt.Sprintf("Congratulations! Your PowerLine position %s has been secured!", powerline.FormattedPosition(p.Position)),
		NextSteps: enrollNextSteps,
	})
}

// Sponsored lists the positions the caller sponsored
func (h *PowerLineHandler) Sponsored(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	positions, err := h.positionService.ListBySponsor(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPositionSummaries(positions, time.Now().UTC()))
}

// ============================================
// Admin
// ============================================

func (h *PowerLineHandler) AdminStats(c *gin.Context) {
	days, ok := queryInt(c, "timeframe", 7)
	if !ok {
		return
	}

	stats, err := h.positionService.AdminStats(c.Request.Context(), days)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	growth := make([]models.DailyGrowthResponse, len(stats.DailyGrowth))
	for i, d := range stats.DailyGrowth {
		growth[i] = models.DailyGrowthResponse{Date: d.Date, Additions: d.Count}
	}
	c.JSON(http.StatusOK, models.AdminStatsResponse{
		Timeframe:       strconv.Itoa(stats.TimeframeDays) + " days",
		TotalPositions:  stats.TotalPositions,
		RecentAdditions: stats.RecentAdditions,
		StatusBreakdown: stats.StatusBreakdown,
		DailyGrowth:     growth,
	})
}

func (h *PowerLineHandler) ListPositions(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	from, ok := queryInt(c, "startPosition", 0)
	if !ok {
		return
	}
	to, ok := queryInt(c, "endPosition", 0)
	if !ok {
		return
	}

	result, err := h.positionService.ListPositions(c.Request.Context(), service.ListFilter{
		Status: c.Query("status"),
		From:   int64(from),
		To:     int64(to),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PositionListResponse{
		Positions: toPositionResponseList(result.Positions, time.Now().UTC()),
		Total:     result.Total,
		Page:      result.Page,
		Limit:     result.Limit,
		Pages:     result.Pages,
	})
}

func (h *PowerLineHandler) NextPosition(c *gin.Context) {
	next, err := h.positionService.NextPosition(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"nextPosition": next, "formattedPosition": powerline.FormattedPosition(next)})
}

func (h *PowerLineHandler) UpdateStatus(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	position, ok := paramPosition(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.positionService.AdvanceStatus(c.Request.Context(), position, req.Status, req.Notes, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPositionResponse(p, time.Now().UTC()))
}
