package service

import (
	"errors"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/config"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrUserNotFound   = errors.New("user not found")
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidSponsor = errors.New("invalid sponsor")

	// ErrQueueContention means every enrollment attempt lost the race for
	// the next position number. The caller may retry later.
	ErrQueueContention = errors.New("queue contention, try again")

	ErrDuplicatePosition     = repository.ErrDuplicatePosition
	ErrDuplicateUserPosition = repository.ErrDuplicateUserPosition
)

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth     AuthService
	User     UserService
	Activity ActivityService
	Position PositionService
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Config      *config.Config
	Repos       *repository.Repositories
	Cache       Cache
	Broadcaster Broadcaster
	Notifier    Notifier
	Metrics     *Metrics
}

func NewServices(deps *ServiceDeps) *Services {
	userService := NewUserService(deps.Repos.UserRepo)
	activityService := NewActivityService(deps.Repos.ActivityRepo)

	return &Services{
		Auth:     NewAuthService(deps.Config),
		User:     userService,
		Activity: activityService,
		Position: NewPositionService(PositionServiceConfig{
			Positions:      deps.Repos.PositionRepo,
			Directory:      userService,
			Activity:       activityService,
			Cache:          deps.Cache,
			Broadcaster:    deps.Broadcaster,
			Notifier:       deps.Notifier,
			Metrics:        deps.Metrics,
			MaxAttempts:    deps.Config.EnrollMaxAttempts,
			StorageTimeout: deps.Config.StorageTimeout,
			CacheTTL:       deps.Config.QueueCacheTTL,
		}),
	}
}

// utcNow is replaced in tests.
var utcNow = func() time.Time { return time.Now().UTC() }
