// internal/repository/repository.go
package repository

import (
	"errors"
	"time"
)

// ============================================
// Storage errors
// ============================================

var (
	// ErrDuplicatePosition means the position number was claimed by a concurrent insert.
	ErrDuplicatePosition = errors.New("position number already assigned")
	// ErrDuplicateUserPosition means the account already owns a position.
	ErrDuplicateUserPosition = errors.New("user already owns a position")
	// ErrDuplicateEmail means another account uses the address, ignoring case.
	ErrDuplicateEmail = errors.New("email already registered")
)

const maxNotesLength = 500

// ============================================
// Models / Entities
// ============================================

type User struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	Name      string    `bson:"name"`
	Role      string    `bson:"role"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Progression tracks one-time milestones reached by a position holder.
type Progression struct {
	HasEnrolled    bool       `bson:"hasEnrolled"`
	EnrollmentDate *time.Time `bson:"enrollmentDate,omitempty"`
	BecamePromoter bool       `bson:"becamePromoter"`
	PromoterDate   *time.Time `bson:"promoterDate,omitempty"`
}

// Position is a single slot in the PowerLine queue. The Position number is
// assigned once and never changes; tree relationships are derived from it.
type Position struct {
	ID            string      `bson:"_id"`
	Position      int64       `bson:"position"`
	UserID        string      `bson:"userId"`
	DisplayName   string      `bson:"displayName"`
	SponsorID     *string     `bson:"sponsorId,omitempty"`
	SponsorName   *string     `bson:"sponsorName,omitempty"`
	Status        string      `bson:"status"`
	Source        string      `bson:"source"`
	JoinedAt      time.Time   `bson:"joinedAt"`
	ContactEmail  *string     `bson:"contactEmail,omitempty"`
	ContactPhone  *string     `bson:"contactPhone,omitempty"`
	Progression   Progression `bson:"progression"`
	LastActivity  time.Time   `bson:"lastActivity"`
	ActivityCount int         `bson:"activityCount"`
	Notes         *string     `bson:"notes,omitempty"`
	CreatedAt     time.Time   `bson:"createdAt"`
	UpdatedAt     time.Time   `bson:"updatedAt"`
}

type Activity struct {
	ID         string                 `bson:"_id"`
	Type       string                 `bson:"type"`
	EntityType string                 `bson:"entityType"`
	EntityID   string                 `bson:"entityId"`
	UserID     string                 `bson:"userId"`
	Changes    map[string]interface{} `bson:"changes,omitempty"`
	Metadata   map[string]interface{} `bson:"metadata,omitempty"`
	CreatedAt  time.Time              `bson:"createdAt"`
}

// ============================================
// Query helpers
// ============================================

// StatusUpdate describes a status transition applied atomically by the store.
type StatusUpdate struct {
	Status string
	// Notes is appended to the existing notes when non-nil.
	Notes *string
	// Milestone is "", "enrolled" or "promoter". The matching progression
	// timestamp is only written if it is still unset.
	Milestone string
	At        time.Time
}

// PositionFilter selects positions for paginated listings. Zero bounds are open.
type PositionFilter struct {
	Status string
	From   int64
	To     int64
	Offset int
	Limit  int
}

// DailyCount is the number of positions joined on one UTC day (YYYY-MM-DD).
type DailyCount struct {
	Date  string `bson:"_id"`
	Count int64  `bson:"count"`
}

// appendNotes joins existing and added notes, keeping the most recent
// maxNotesLength characters.
func appendNotes(existing *string, added *string) *string {
	if added == nil {
		return existing
	}
	combined := *added
	if existing != nil && *existing != "" {
		combined = *existing + "\n" + *added
	}
	runes := []rune(combined)
	if len(runes) > maxNotesLength {
		combined = string(runes[len(runes)-maxNotesLength:])
	}
	return &combined
}
