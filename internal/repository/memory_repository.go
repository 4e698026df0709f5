package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/types"
)

// ============================================
// In-memory driver (STORE_DRIVER=memory, tests)
// ============================================

type MemoryPositionRepository struct {
	mu           sync.RWMutex
	positions    map[int64]*Position
	byUser       map[string]int64
	afterMaxRead func()
}

func NewMemoryPositionRepository() *MemoryPositionRepository {
	return &MemoryPositionRepository{
		positions: make(map[int64]*Position),
		byUser:    make(map[string]int64),
	}
}

// SetAfterMaxRead installs fn to run after MaxPosition has read the maximum
// and before it returns. Tests use it to hold callers at the read step.
func (r *MemoryPositionRepository) SetAfterMaxRead(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterMaxRead = fn
}

func (r *MemoryPositionRepository) Create(ctx context.Context, p *Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.positions[p.Position]; taken {
		return ErrDuplicatePosition
	}
	if _, owned := r.byUser[p.UserID]; owned {
		return ErrDuplicateUserPosition
	}

	p.ID = newDocumentID()
	stamp(&p.CreatedAt, &p.UpdatedAt)
	p.LastActivity = p.JoinedAt

	stored := clonePosition(p)
	r.positions[p.Position] = stored
	r.byUser[p.UserID] = p.Position
	return nil
}

func (r *MemoryPositionRepository) MaxPosition(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	var highest int64
	for n := range r.positions {
		if n > highest {
			highest = n
		}
	}
	hook := r.afterMaxRead
	r.mu.RUnlock()

	if hook != nil {
		hook()
	}
	return highest, nil
}

func (r *MemoryPositionRepository) FindByUserID(ctx context.Context, userID string) (*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byUser[userID]
	if !ok {
		return nil, nil
	}
	return clonePosition(r.positions[n]), nil
}

func (r *MemoryPositionRepository) FindByPosition(ctx context.Context, position int64) (*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.positions[position]
	if !ok {
		return nil, nil
	}
	return clonePosition(p), nil
}

func (r *MemoryPositionRepository) FindRange(ctx context.Context, from, to int64) ([]*Position, error) {
	return r.selectSorted(ctx, func(p *Position) bool {
		return p.Position >= from && p.Position <= to
	}, byNumber)
}

func (r *MemoryPositionRepository) FindFirst(ctx context.Context, limit int) ([]*Position, error) {
	all, err := r.selectSorted(ctx, nil, byNumber)
	if err != nil {
		return nil, err
	}
	return truncate(all, limit), nil
}

func (r *MemoryPositionRepository) FindRecent(ctx context.Context, limit int) ([]*Position, error) {
	all, err := r.selectSorted(ctx, nil, func(a, b *Position) bool {
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.After(b.JoinedAt)
		}
		return a.Position > b.Position
	})
	if err != nil {
		return nil, err
	}
	return truncate(all, limit), nil
}

func (r *MemoryPositionRepository) FindBySponsor(ctx context.Context, sponsorID string) ([]*Position, error) {
	return r.selectSorted(ctx, func(p *Position) bool {
		return p.SponsorID != nil && *p.SponsorID == sponsorID
	}, byNumber)
}

func (r *MemoryPositionRepository) List(ctx context.Context, filter PositionFilter) ([]*Position, int64, error) {
	matched, err := r.selectSorted(ctx, func(p *Position) bool {
		if filter.Status != "" && p.Status != filter.Status {
			return false
		}
		if filter.From > 0 && p.Position < filter.From {
			return false
		}
		if filter.To > 0 && p.Position > filter.To {
			return false
		}
		return true
	}, byNumber)
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*Position{}, total, nil
	}
	return truncate(matched[filter.Offset:], filter.Limit), total, nil
}

func (r *MemoryPositionRepository) Count(ctx context.Context) (int64, error) {
	return r.countWhere(ctx, func(*Position) bool { return true })
}

func (r *MemoryPositionRepository) CountBefore(ctx context.Context, position int64) (int64, error) {
	return r.countWhere(ctx, func(p *Position) bool { return p.Position < position })
}

func (r *MemoryPositionRepository) CountAfter(ctx context.Context, position int64) (int64, error) {
	return r.countWhere(ctx, func(p *Position) bool { return p.Position > position })
}

func (r *MemoryPositionRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.countWhere(ctx, func(p *Position) bool { return !p.JoinedAt.Before(since) })
}

func (r *MemoryPositionRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, p := range r.positions {
		counts[p.Status]++
	}
	return counts, nil
}

func (r *MemoryPositionRepository) DailyGrowth(ctx context.Context, since time.Time) ([]DailyCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	buckets := make(map[string]int64)
	for _, p := range r.positions {
		if p.JoinedAt.Before(since) {
			continue
		}
		buckets[p.JoinedAt.UTC().Format("2006-01-02")]++
	}
	r.mu.RUnlock()

	growth := make([]DailyCount, 0, len(buckets))
	for day, n := range buckets {
		growth = append(growth, DailyCount{Date: day, Count: n})
	}
	sort.Slice(growth, func(i, j int) bool { return growth[i].Date < growth[j].Date })
	return growth, nil
}

func (r *MemoryPositionRepository) AdvanceStatus(ctx context.Context, position int64, update StatusUpdate) (*Position, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[position]
	if !ok {
		return nil, "", nil
	}

	previous := p.Status
	at := update.At
	p.Status = update.Status
	p.Notes = appendNotes(p.Notes, update.Notes)
	p.LastActivity = at
	p.ActivityCount++
	p.UpdatedAt = at

	switch update.Milestone {
	case types.PositionEnrolled:
		p.Progression.HasEnrolled = true
		if p.Progression.EnrollmentDate == nil {
			p.Progression.EnrollmentDate = &at
		}
	case types.PositionPromoter:
		p.Progression.BecamePromoter = true
		if p.Progression.PromoterDate == nil {
			p.Progression.PromoterDate = &at
		}
	}
	return clonePosition(p), previous, nil
}

func (r *MemoryPositionRepository) countWhere(ctx context.Context, match func(*Position) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, p := range r.positions {
		if match(p) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryPositionRepository) selectSorted(ctx context.Context, match func(*Position) bool, less func(a, b *Position) bool) ([]*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := []*Position{}
	for _, p := range r.positions {
		if match == nil || match(p) {
			out = append(out, clonePosition(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func byNumber(a, b *Position) bool { return a.Position < b.Position }

func truncate(positions []*Position, limit int) []*Position {
	if limit > 0 && len(positions) > limit {
		return positions[:limit]
	}
	return positions
}

func clonePosition(p *Position) *Position {
	c := *p
	return &c
}

// ============================================
// Users
// ============================================

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = newDocumentID()
	}
	if user.Status == "" {
		user.Status = types.UserActive
	}
	if user.Role == "" {
		user.Role = types.RoleMember
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)

	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

// ============================================
// Activities
// ============================================

type MemoryActivityRepository struct {
	mu         sync.RWMutex
	activities []*Activity
}

func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{}
}

func (r *MemoryActivityRepository) Create(ctx context.Context, activity *Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	activity.ID = newDocumentID()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	c := *activity
	r.activities = append(r.activities, &c)
	return nil
}

func (r *MemoryActivityRepository) FindByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, limit, func(a *Activity) bool {
		return a.EntityType == entityType && a.EntityID == entityID
	})
}

func (r *MemoryActivityRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, limit, func(a *Activity) bool { return a.UserID == userID })
}

func (r *MemoryActivityRepository) FindRecent(ctx context.Context, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, limit, func(*Activity) bool { return true })
}

func (r *MemoryActivityRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.activities[:0]
	deleted := 0
	for _, a := range r.activities {
		if a.CreatedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.activities = kept
	return deleted, nil
}

func (r *MemoryActivityRepository) newestFirst(ctx context.Context, limit int, match func(*Activity) bool) ([]*Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Activity{}
	for i := len(r.activities) - 1; i >= 0; i-- {
		if match(r.activities[i]) {
			c := *r.activities[i]
			out = append(out, &c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
