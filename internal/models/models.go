package models

import "time"

// ============================================
// User DTOs
// ============================================

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CurrentUserResponse is the caller's profile with their queue slot, if any.
type CurrentUserResponse struct {
	UserResponse
	Position          *int64 `json:"position,omitempty"`
	FormattedPosition string `json:"formattedPosition,omitempty"`
	PositionStatus    string `json:"positionStatus,omitempty"`
}

// ============================================
// PowerLine DTOs
// ============================================

type EnrollRequest struct {
	SponsorID    *string `json:"sponsorId,omitempty" binding:"omitempty,max=64"`
	DisplayName  string  `json:"displayName" binding:"max=200"`
	Source       string  `json:"source" binding:"omitempty,enroll_source"`
	ContactEmail *string `json:"contactEmail,omitempty" binding:"omitempty,email"`
	ContactPhone *string `json:"contactPhone,omitempty" binding:"omitempty,max=32"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required,queue_status"`
	Notes  *string `json:"notes,omitempty" binding:"omitempty,max=500"`
}

type ProgressionResponse struct {
	HasEnrolled    bool       `json:"hasEnrolled"`
	EnrollmentDate *time.Time `json:"enrollmentDate,omitempty"`
	BecamePromoter bool       `json:"becamePromoter"`
	PromoterDate   *time.Time `json:"promoterDate,omitempty"`
}

type PositionResponse struct {
	ID                string              `json:"id"`
	Position          int64               `json:"position"`
	FormattedPosition string              `json:"formattedPosition"`
	UserID            string              `json:"userId"`
	DisplayName       string              `json:"displayName"`
	SponsorID         *string             `json:"sponsorId,omitempty"`
	SponsorName       *string             `json:"sponsorName,omitempty"`
	Status            string              `json:"status"`
	Source            string              `json:"source"`
	JoinedAt          time.Time           `json:"joinedAt"`
	TimeInQueue       string              `json:"timeInQueue"`
	TreeLevel         int                 `json:"treeLevel"`
	ContactEmail      *string             `json:"contactEmail,omitempty"`
	ContactPhone      *string             `json:"contactPhone,omitempty"`
	Progression       ProgressionResponse `json:"progression"`
	LastActivity      time.Time           `json:"lastActivity"`
	ActivityCount     int                 `json:"activityCount"`
	Notes             *string             `json:"notes,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// PositionSummary is the public view of a position. It never carries
// contact details or notes.
type PositionSummary struct {
	Position    int64     `json:"position"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joinedAt"`
	TimeInQueue string    `json:"timeInQueue,omitempty"`
}

type QueueStatsResponse struct {
	Position          int64  `json:"position"`
	FormattedPosition string `json:"formattedPosition"`
	PositionsAhead    int64  `json:"positionsAhead"`
	PositionsBehind   int64  `json:"positionsBehind"`
	TotalPositions    int64  `json:"totalPositions"`
	Percentile        int    `json:"percentile"`
}

type QueueStatusResponse struct {
	TotalPositions  int64             `json:"totalPositions"`
	RecentAdditions int64             `json:"recentAdditions"`
	QueueSample     []PositionSummary `json:"queueSample"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

type EnrollResponse struct {
	Position  PositionResponse `json:"position"`
	Message   string           `json:"message"`
	NextSteps []string         `json:"nextSteps"`
}

type TreeNode struct {
	Position       int64   `json:"position"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	TreeLevel      int     `json:"treeLevel"`
	ParentPosition *int64  `json:"parentPosition,omitempty"`
	Children       []int64 `json:"children"`
}

type TreeResponse struct {
	StartPosition  int64                 `json:"startPosition"`
	EndPosition    int64                 `json:"endPosition"`
	Levels         int                   `json:"levels"`
	TotalPositions int                   `json:"totalPositions"`
	Structure      map[string][]TreeNode `json:"structure"`
}

type GrowthFeedItem struct {
	Position int64  `json:"position"`
	Name     string `json:"name"`
	TimeAgo  string `json:"timeAgo"`
	Status   string `json:"status"`
}

type GrowthFeedStats struct {
	TotalShowing   int   `json:"totalShowing"`
	NewestPosition int64 `json:"newestPosition"`
	OldestPosition int64 `json:"oldestPosition"`
}

type GrowthFeedResponse struct {
	GrowthFeed []GrowthFeedItem `json:"growthFeed"`
	Stats      GrowthFeedStats  `json:"stats"`
}

type SponsorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type MyPositionResponse struct {
	HasPosition bool                `json:"hasPosition"`
	Position    *PositionResponse   `json:"position,omitempty"`
	Sponsor     *SponsorResponse    `json:"sponsor,omitempty"`
	QueueInfo   *QueueStatsResponse `json:"queueInfo,omitempty"`
	Nearby      []PositionSummary   `json:"nearbyActivity,omitempty"`
	TreePath    []int64             `json:"treePath,omitempty"`
}

type DailyGrowthResponse struct {
	Date      string `json:"date"`
	Additions int64  `json:"additions"`
}

type AdminStatsResponse struct {
	Timeframe       string                `json:"timeframe"`
	TotalPositions  int64                 `json:"totalPositions"`
	RecentAdditions int64                 `json:"recentAdditions"`
	StatusBreakdown map[string]int64      `json:"statusBreakdown"`
	DailyGrowth     []DailyGrowthResponse `json:"dailyGrowth"`
}

type PositionListResponse struct {
	Positions []PositionResponse `json:"positions"`
	Total     int64              `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
	Pages     int                `json:"pages"`
}

// ============================================
// Activity DTOs
// ============================================

type ActivityResponse struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	UserID     string                 `json:"userId"`
	Changes    map[string]interface{} `json:"changes,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
