package types

// Position status values
const (
	PositionActive    = "active"
	PositionPending   = "pending"
	PositionInactive  = "inactive"
	PositionSuspended = "suspended"

	// Progression milestones. Entering one stamps a one-time timestamp.
	PositionEnrolled = "enrolled"
	PositionPromoter = "promoter"
)

// Enrollment sources
const (
	SourcePowerLineEnrollment = "powerline_enrollment"
	SourceDirectInvitation    = "direct_invitation"
	SourceFunnelCapture       = "funnel_capture"
	SourceEventSignup         = "event_signup"
	SourceManualAdmin         = "manual_admin"
	SourceImported            = "imported"
)

// Activity types emitted by the queue
const (
	ActivityPositionEnrolled      = "position_enrolled"
	ActivityPositionStatusChanged = "position_status_changed"
)

// Activity entity types
const (
	EntityPowerLinePosition = "powerline_position"
)

// User roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User status values
const (
	UserActive    = "active"
	UserInactive  = "inactive"
	UserSuspended = "suspended"
)

const DefaultDisplayName = "PowerLine Member"

// ValidPositionStatuses lists every status a position may be moved into.
var ValidPositionStatuses = []string{
	PositionActive, PositionPending, PositionInactive, PositionSuspended,
	PositionEnrolled, PositionPromoter,
}

var ValidSources = []string{
	SourcePowerLineEnrollment, SourceDirectInvitation, SourceFunnelCapture,
	SourceEventSignup, SourceManualAdmin, SourceImported,
}

func IsValidPositionStatus(status string) bool {
	return contains(ValidPositionStatuses, status)
}

func IsValidSource(source string) bool {
	return contains(ValidSources, source)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
