package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/logging"
	"github.com/Marga-Ghale/powerline-backend/internal/models"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is advertised when enrollment gives up under contention.
const retryAfterSeconds = 1

// Handlers contains all HTTP handlers
type Handlers struct {
	User      *UserHandler
	PowerLine *PowerLineHandler
	Activity  *ActivityHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		User:      &UserHandler{userService: services.User, positionService: services.Position},
		PowerLine: &PowerLineHandler{positionService: services.Position},
		Activity:  &ActivityHandler{activitySvc: services.Activity},
	}
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateUserPosition):
		c.JSON(http.StatusConflict, gin.H{"error": "You already have a PowerLine position", "code": "duplicate_user_position"})
	case errors.Is(err, service.ErrInvalidSponsor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sponsor ID", "code": "invalid_sponsor"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "code": "invalid_input"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found", "code": "not_found"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "not_found"})
	case errors.Is(err, service.ErrQueueContention):
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "The queue is busy, please try again", "code": "queue_contention"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "code": "forbidden"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("Unhandled service error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_input"})
}

// ============================================
// Response Mappers
// ============================================

func toUserResponse(u *repository.User) models.UserResponse {
	return models.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

func toPositionResponse(p *repository.Position, now time.Time) models.PositionResponse {
	return models.PositionResponse{
		ID:                p.ID,
		Position:          p.Position,
		FormattedPosition: powerline.FormattedPosition(p.Position),
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		SponsorID:         p.SponsorID,
		SponsorName:       p.SponsorName,
		Status:            p.Status,
		Source:            p.Source,
		JoinedAt:          p.JoinedAt,
		TimeInQueue:       powerline.TimeInQueue(p.JoinedAt, now),
		TreeLevel:         powerline.TreeLevel(p.Position),
		ContactEmail:      p.ContactEmail,
		ContactPhone:      p.ContactPhone,
		Progression: models.ProgressionResponse{
			HasEnrolled:    p.Progression.HasEnrolled,
			EnrollmentDate: p.Progression.EnrollmentDate,
			BecamePromoter: p.Progression.BecamePromoter,
			PromoterDate:   p.Progression.PromoterDate,
		},
		LastActivity:  p.LastActivity,
		ActivityCount: p.ActivityCount,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toPositionResponseList(positions []*repository.Position, now time.Time) []models.PositionResponse {
	response := make([]models.PositionResponse, len(positions))
	for i, p := range positions {
		response[i] = toPositionResponse(p, now)
	}
	return response
}

func toPositionSummaries(positions []*repository.Position, now time.Time) []models.PositionSummary {
	response := make([]models.PositionSummary, len(positions))
	for i, p := range positions {
		response[i] = models.PositionSummary{
			Position:    p.Position,
			Name:        p.DisplayName,
			Status:      p.Status,
			JoinedAt:    p.JoinedAt,
			TimeInQueue: powerline.TimeInQueue(p.JoinedAt, now),
		}
	}
	return response
}

func toQueueStatsResponse(s *service.QueueStats) *models.QueueStatsResponse {
	return &models.QueueStatsResponse{
		Position:          s.Position,
		FormattedPosition: powerline.FormattedPosition(s.Position),
		PositionsAhead:    s.PositionsAhead,
		PositionsBehind:   s.PositionsBehind,
		TotalPositions:    s.TotalPositions,
		Percentile:        s.Percentile,
	}
}

func toTreeResponse(t *service.TreeRange) models.TreeResponse {
	structure := make(map[string][]models.TreeNode, len(t.ByLevel))
	for level, positions := range t.ByLevel {
		nodes := make([]models.TreeNode, len(positions))
		for i, p := range positions {
			children := powerline.ChildPositions(p.Position)
			node := models.TreeNode{
				Position:  p.Position,
				Name:      p.DisplayName,
				Status:    p.Status,
				TreeLevel: powerline.TreeLevel(p.Position),
				Children:  children[:],
			}
			if parent, ok := powerline.ParentPosition(p.Position); ok {
				node.ParentPosition = &parent
			}
			nodes[i] = node
		}
		structure[strconv.Itoa(level)] = nodes
	}
	return models.TreeResponse{
		StartPosition:  t.Start,
		EndPosition:    t.End,
		Levels:         t.Levels,
		TotalPositions: t.Total,
		Structure:      structure,
	}
}

func toActivityResponseList(activities []*repository.Activity) []models.ActivityResponse {
	response := make([]models.ActivityResponse, len(activities))
	for i, a := range activities {
		response[i] = models.ActivityResponse{
			ID:         a.ID,
			Type:       a.Type,
			EntityType: a.EntityType,
			EntityID:   a.EntityID,
			UserID:     a.UserID,
			Changes:    a.Changes,
			Metadata:   a.Metadata,
			CreatedAt:  a.CreatedAt,
		}
	}
	return response
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+key)
		return 0, false
	}
	return v, true
}

func paramPosition(c *gin.Context) (int64, bool) {
	raw := c.Param("position")
	if raw == "" {
		return powerline.RootPosition, true
	}
	p, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !powerline.ValidPosition(p) {
		badRequest(c, "Invalid position")
		return 0, false
	}
	return p, true
}
