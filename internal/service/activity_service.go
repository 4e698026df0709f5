package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/repository"
)

// ============================================
// Activity Service
// ============================================

// ActivityLog receives audit events from the queue.
type ActivityLog interface {
	Record(ctx context.Context, activity *repository.Activity) error
}

type ActivityService interface {
	ActivityLog
	GetEntityActivities(ctx context.Context, entityType, entityID string, limit int) ([]*repository.Activity, error)
	GetUserActivities(ctx context.Context, userID string, limit int) ([]*repository.Activity, error)
	RecentFeed(ctx context.Context, limit int) ([]*repository.Activity, error)
	// Cleanup deletes activities created before olderThan and returns how many went.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type activityService struct {
	activityRepo repository.ActivityRepository
}

func NewActivityService(activityRepo repository.ActivityRepository) ActivityService {
	return &activityService{activityRepo: activityRepo}
}

// Record stores one audit event. Every store sees UTC timestamps.
func (s *activityService) Record(ctx context.Context, activity *repository.Activity) error {
	if activity == nil || activity.Type == "" || activity.EntityType == "" {
		return ErrInvalidInput
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = utcNow()
	} else {
		activity.CreatedAt = activity.CreatedAt.UTC()
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		return fmt.Errorf("record %s activity: %w", activity.Type, err)
	}
	return nil
}

func (s *activityService) GetEntityActivities(ctx context.Context, entityType, entityID string, limit int) ([]*repository.Activity, error) {
	return s.activityRepo.FindByEntity(ctx, entityType, entityID, activityLimit(limit))
}

func (s *activityService) GetUserActivities(ctx context.Context, userID string, limit int) ([]*repository.Activity, error) {
	return s.activityRepo.FindByUser(ctx, userID, activityLimit(limit))
}

func (s *activityService) RecentFeed(ctx context.Context, limit int) ([]*repository.Activity, error) {
	return s.activityRepo.FindRecent(ctx, activityLimit(limit))
}

func (s *activityService) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if olderThan.IsZero() {
		return 0, ErrInvalidInput
	}
	return s.activityRepo.DeleteOlderThan(ctx, olderThan)
}

func activityLimit(limit int) int {
	return clampLimit(limit, defaultActivityLimit, maxActivityLimit)
}

// clampLimit applies def when limit is unset and caps it at ceiling.
func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
