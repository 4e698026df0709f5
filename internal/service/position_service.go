package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Marga-Ghale/powerline-backend/internal/logging"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ============================================
// Position Service
// ============================================

const (
	defaultMaxAttempts    = 5
	defaultStorageTimeout = 5 * time.Second
	defaultCacheTTL       = 30 * time.Second

	maxDisplayNameLength = 50
	maxNotesLength       = 500

	queueSampleSize  = 10
	myPositionRadius = 5
	recentWindow     = 24 * time.Hour
	defaultFeedLimit = 20
	maxFeedLimit     = 100
	defaultPageLimit = 20
	maxPageLimit     = 100
	defaultStatsDays = 7
	maxStatsDays     = 365
	maxNearbyRadius  = 50

	cacheKeyQueueStatus = "queue:status"
	cacheKeyAdminStats  = "queue:admin_stats:"
	cachePatternQueue   = "queue:*"
)

// Cache is the subset of the redis client the queue uses.
type Cache interface {
	SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetCache(ctx context.Context, key string, dest interface{}) error
	InvalidateCache(ctx context.Context, pattern string) error
}

// Broadcaster pushes queue events to connected clients.
type Broadcaster interface {
	BroadcastPositionEnrolled(position map[string]interface{})
	BroadcastPositionStatusChanged(position map[string]interface{}, oldStatus, newStatus string)
	BroadcastQueueStats(stats map[string]interface{})
	NotifySponsorRecruit(sponsorID string, recruit map[string]interface{})
}

type EnrollRequest struct {
	UserID       string
	SponsorID    *string
	DisplayName  string
	Source       string
	ContactEmail *string
	ContactPhone *string
}

type QueueStats struct {
	Position        int64 `json:"position"`
	PositionsAhead  int64 `json:"positionsAhead"`
	PositionsBehind int64 `json:"positionsBehind"`
	TotalPositions  int64 `json:"totalPositions"`
	Percentile      int   `json:"percentile"`
}

// TreeRange is a windowed slice of the tree. ByLevel is keyed by the level
// relative to Start, not the global tree level.
type TreeRange struct {
	Start   int64
	End     int64
	Levels  int
	ByLevel map[int][]*repository.Position
	Total   int
}

type QueueStatus struct {
	TotalPositions  int64                  `json:"totalPositions"`
	RecentAdditions int64                  `json:"recentAdditions"`
	QueueSample     []*repository.Position `json:"queueSample"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}

type AdminStats struct {
	TimeframeDays   int                     `json:"timeframeDays"`
	TotalPositions  int64                   `json:"totalPositions"`
	RecentAdditions int64                   `json:"recentAdditions"`
	StatusBreakdown map[string]int64        `json:"statusBreakdown"`
	DailyGrowth     []repository.DailyCount `json:"dailyGrowth"`
}

type ListFilter struct {
	Status string
	From   int64
	To     int64
	Page   int
	Limit  int
}

type PositionPage struct {
	Positions []*repository.Position
	Total     int64
	Page      int
	Limit     int
	Pages     int
}

type SponsorInfo struct {
	ID    string
	Name  string
	Email string
}

type MyPositionView struct {
	Position *repository.Position
	Sponsor  *SponsorInfo
	Stats    *QueueStats
	Nearby   []*repository.Position
}

type PositionService interface {
	NextPosition(ctx context.Context) (int64, error)
	Enroll(ctx context.Context, req EnrollRequest) (*repository.Position, error)
	GetPosition(ctx context.Context, userID string) (*repository.Position, error)
	GetByNumber(ctx context.Context, position int64) (*repository.Position, error)
	QueueStats(ctx context.Context, position int64) (*QueueStats, error)
	NearbyWindow(ctx context.Context, position int64, radius int) ([]*repository.Position, error)
	TreeRange(ctx context.Context, start int64, levels int) (*TreeRange, error)
	AdvanceStatus(ctx context.Context, position int64, newStatus string, notes *string, actorID string) (*repository.Position, error)

	QueueStatus(ctx context.Context) (*QueueStatus, error)
	RefreshQueueStatus(ctx context.Context) (*QueueStatus, error)
	GrowthFeed(ctx context.Context, limit int) ([]*repository.Position, error)
	AdminStats(ctx context.Context, days int) (*AdminStats, error)
	ListPositions(ctx context.Context, filter ListFilter) (*PositionPage, error)
	ListBySponsor(ctx context.Context, sponsorID string) ([]*repository.Position, error)
	MyPosition(ctx context.Context, userID string) (*MyPositionView, error)
}

// Notifier sends out-of-band messages about a committed enrollment.
type Notifier interface {
	NotifyEnrolled(ctx context.Context, p *repository.Position) error
}

// PositionServiceConfig wires the queue. Cache, Broadcaster, Notifier,
// Activity and Metrics are optional.
type PositionServiceConfig struct {
	Positions      repository.PositionRepository
	Directory      UserDirectory
	Activity       ActivityLog
	Cache          Cache
	Broadcaster    Broadcaster
	Notifier       Notifier
	Metrics        *Metrics
	MaxAttempts    int
	StorageTimeout time.Duration
	CacheTTL       time.Duration
}

type positionService struct {
	positions   repository.PositionRepository
	directory   UserDirectory
	activity    ActivityLog
	cache       Cache
	broadcaster Broadcaster
	notifier    Notifier
	metrics     *Metrics

	maxAttempts int
	timeout     time.Duration
	cacheTTL    time.Duration
}

func NewPositionService(cfg PositionServiceConfig) PositionService {
	s := &positionService{
		positions:   cfg.Positions,
		directory:   cfg.Directory,
		activity:    cfg.Activity,
		cache:       cfg.Cache,
		broadcaster: cfg.Broadcaster,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.StorageTimeout,
		cacheTTL:    cfg.CacheTTL,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.timeout <= 0 {
		s.timeout = defaultStorageTimeout
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	return s
}

func (s *positionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// NextPosition returns max+1, or 1 for an empty queue. The value is only a
// candidate: another writer may claim it before it is inserted.
func (s *positionService) NextPosition(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	highest, err := s.positions.MaxPosition(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read max position: %w", err)
	}
	return highest + 1, nil
}

// ============================================
// Enrollment
// ============================================

func (s *positionService) Enroll(ctx context.Context, req EnrollRequest) (*repository.Position, error) {
	start := time.Now()
	p, err := s.enroll(ctx, req)
	s.metrics.observeEnroll(err, time.Since(start))
	return p, err
}

func (s *positionService) enroll(ctx context.Context, req EnrollRequest) (*repository.Position, error) {
	log := logging.FromContext(ctx).WithField("user_id", req.UserID)

	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrInvalidInput
	}
	source := req.Source
	if source == "" {
		source = types.SourcePowerLineEnrollment
	}
	if !types.IsValidSource(source) {
		return nil, ErrInvalidInput
	}

	existing, err := s.findByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrDuplicateUserPosition
	}

	sponsorID, sponsorName, err := s.resolveSponsor(ctx, req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := s.NextPosition(ctx)
		if err != nil {
			return nil, err
		}

		p := &repository.Position{
			Position:     next,
			UserID:       req.UserID,
			DisplayName:  normalizeDisplayName(req.DisplayName),
			SponsorID:    sponsorID,
			SponsorName:  sponsorName,
			Status:       types.PositionActive,
			Source:       source,
			JoinedAt:     utcNow(),
			ContactEmail: trimmedOrNil(req.ContactEmail),
			ContactPhone: trimmedOrNil(req.ContactPhone),
		}

		err = s.create(ctx, p)
		switch {
		case err == nil:
			log.WithFields(logrus.Fields{"position": p.Position, "attempt": attempt}).Info("Position enrolled")
			s.afterEnroll(ctx, p)
			return p, nil

		case errors.Is(err, repository.ErrDuplicatePosition):
			lastErr = err
			s.metrics.retry()
			log.WithFields(logrus.Fields{"position": next, "attempt": attempt}).Debug("Position number taken, retrying")

		case errors.Is(err, repository.ErrDuplicateUserPosition):
			return nil, ErrDuplicateUserPosition

		default:
			return nil, fmt.Errorf("failed to create position: %w", err)
		}
	}

	log.WithError(lastErr).WithField("attempts", s.maxAttempts).Warn("Enrollment gave up after repeated collisions")
	return nil, ErrQueueContention
}

func (s *positionService) create(ctx context.Context, p *repository.Position) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.positions.Create(ctx, p)
}

func (s *positionService) findByUser(ctx context.Context, userID string) (*repository.Position, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.positions.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up position: %w", err)
	}
	return p, nil
}

func (s *positionService) resolveSponsor(ctx context.Context, req EnrollRequest) (*string, *string, error) {
	if req.SponsorID == nil || strings.TrimSpace(*req.SponsorID) == "" {
		return nil, nil, nil
	}
	id := strings.TrimSpace(*req.SponsorID)
	if id == req.UserID {
		return nil, nil, ErrInvalidSponsor
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.directory.Exists(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve sponsor: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidSponsor
	}

	name, err := s.directory.DisplayName(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve sponsor name: %w", err)
	}
	return &id, &name, nil
}

// afterEnroll runs the side effects of a committed enrollment. None of them
// can undo the write; failures are logged.
func (s *positionService) afterEnroll(ctx context.Context, p *repository.Position) {
	ctx, cancel := s.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	s.record(ctx, &repository.Activity{
		Type:       types.ActivityPositionEnrolled,
		EntityType: types.EntityPowerLinePosition,
		EntityID:   strconv.FormatInt(p.Position, 10),
		UserID:     p.UserID,
		Metadata: map[string]interface{}{
			"position":  p.Position,
			"source":    p.Source,
			"sponsorId": derefOr(p.SponsorID, ""),
		},
	})
	s.invalidateCache(ctx)

	if s.notifier != nil {
		if err := s.notifier.NotifyEnrolled(ctx, p); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("position", p.Position).Warn("Failed to send enrollment notifications")
		}
	}

	if s.broadcaster == nil {
		return
	}
	payload := positionPayload(p)
	s.broadcaster.BroadcastPositionEnrolled(payload)
	if p.SponsorID != nil {
		s.broadcaster.NotifySponsorRecruit(*p.SponsorID, payload)
	}
}

func (s *positionService) record(ctx context.Context, activity *repository.Activity) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, activity); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("type", activity.Type).Warn("Failed to record activity")
	}
}

// ============================================
// Lookups
// ============================================

func (s *positionService) GetPosition(ctx context.Context, userID string) (*repository.Position, error) {
	p, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *positionService) GetByNumber(ctx context.Context, position int64) (*repository.Position, error) {
	if !powerline.ValidPosition(position) {
		return nil, ErrInvalidInput
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.positions.FindByPosition(ctx, position)
	if err != nil {
		return nil, fmt.Errorf("failed to look up position: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// QueueStats counts the positions on either side of position. The total is
// ahead + behind + 1 so the three numbers always describe one snapshot.
func (s *positionService) QueueStats(ctx context.Context, position int64) (*QueueStats, error) {
	if _, err := s.GetByNumber(ctx, position); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ahead, behind int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ahead, err = s.positions.CountBefore(gctx, position)
		return err
	})
	g.Go(func() (err error) {
		behind, err = s.positions.CountAfter(gctx, position)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}

	total := ahead + behind + 1
	return &QueueStats{
		Position:        position,
		PositionsAhead:  ahead,
		PositionsBehind: behind,
		TotalPositions:  total,
		Percentile:      powerline.Percentile(ahead, total),
	}, nil
}

// NearbyWindow returns every stored position in [p-radius, p+radius].
func (s *positionService) NearbyWindow(ctx context.Context, position int64, radius int) ([]*repository.Position, error) {
	if !powerline.ValidPosition(position) || radius < 0 || radius > maxNearbyRadius {
		return nil, ErrInvalidInput
	}
	from := position - int64(radius)
	if from < powerline.RootPosition {
		from = powerline.RootPosition
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	positions, err := s.positions.FindRange(ctx, from, position+int64(radius))
	if err != nil {
		return nil, fmt.Errorf("failed to load nearby positions: %w", err)
	}
	return positions, nil
}

// TreeRange loads [start, start+2^levels-1] and buckets each position by its
// level inside the window.
func (s *positionService) TreeRange(ctx context.Context, start int64, levels int) (*TreeRange, error) {
	if !powerline.ValidPosition(start) || levels < 1 || levels > powerline.MaxWindowLevels {
		return nil, ErrInvalidInput
	}
	end := powerline.WindowEnd(start, levels)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	positions, err := s.positions.FindRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree range: %w", err)
	}

	tree := &TreeRange{
		Start:   start,
		End:     end,
		Levels:  levels,
		ByLevel: make(map[int][]*repository.Position),
		Total:   len(positions),
	}
	for _, p := range positions {
		level, ok := powerline.WindowLevel(start, p.Position)
		if !ok || level >= levels {
			continue
		}
		tree.ByLevel[level] = append(tree.ByLevel[level], p)
	}
	return tree, nil
}

// ============================================
// Status transitions
// ============================================

// AdvanceStatus moves position to newStatus. The "from" status reported to
// the audit log and subscribers is the one the storage write replaced.
func (s *positionService) AdvanceStatus(ctx context.Context, position int64, newStatus string, notes *string, actorID string) (*repository.Position, error) {
	if !powerline.ValidPosition(position) || !types.IsValidPositionStatus(newStatus) {
		return nil, ErrInvalidInput
	}
	notes = trimmedOrNil(notes)
	if notes != nil && utf8.RuneCountInString(*notes) > maxNotesLength {
		return nil, ErrInvalidInput
	}

	update := repository.StatusUpdate{Status: newStatus, Notes: notes, At: utcNow()}
	if newStatus == types.PositionEnrolled || newStatus == types.PositionPromoter {
		update.Milestone = newStatus
	}

	wctx, cancel := s.withTimeout(ctx)
	updated, from, err := s.positions.AdvanceStatus(wctx, position, update)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	s.metrics.transition(newStatus)
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"position": position,
		"from":     from,
		"to":       newStatus,
	}).Info("Position status changed")

	sctx, scancel := s.withTimeout(context.WithoutCancel(ctx))
	defer scancel()

	s.record(sctx, &repository.Activity{
		Type:       types.ActivityPositionStatusChanged,
		EntityType: types.EntityPowerLinePosition,
		EntityID:   strconv.FormatInt(position, 10),
		UserID:     actorID,
		Changes: map[string]interface{}{
			"status": map[string]interface{}{"from": from, "to": newStatus},
		},
		Metadata: map[string]interface{}{
			"ownerId": updated.UserID,
			"notes":   derefOr(notes, ""),
		},
	})
	s.invalidateCache(sctx)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastPositionStatusChanged(positionPayload(updated), from, newStatus)
	}
	return updated, nil
}

// ============================================
// Queue views
// ============================================

func (s *positionService) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	var cached QueueStatus
	if s.fromCache(ctx, cacheKeyQueueStatus, &cached) {
		return &cached, nil
	}
	return s.RefreshQueueStatus(ctx)
}

// RefreshQueueStatus recomputes the queue status from storage and stores it
// in the cache.
func (s *positionService) RefreshQueueStatus(ctx context.Context) (*QueueStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	status := &QueueStatus{GeneratedAt: utcNow()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		status.TotalPositions, err = s.positions.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		status.RecentAdditions, err = s.positions.CountSince(gctx, status.GeneratedAt.Add(-recentWindow))
		return err
	})
	g.Go(func() (err error) {
		status.QueueSample, err = s.positions.FindFirst(gctx, queueSampleSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute queue status: %w", err)
	}

	s.toCache(ctx, cacheKeyQueueStatus, status)
	return status, nil
}

func (s *positionService) GrowthFeed(ctx context.Context, limit int) ([]*repository.Position, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	positions, err := s.positions.FindRecent(ctx, clampLimit(limit, defaultFeedLimit, maxFeedLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to load growth feed: %w", err)
	}
	return positions, nil
}

func (s *positionService) AdminStats(ctx context.Context, days int) (*AdminStats, error) {
	days = clampLimit(days, defaultStatsDays, maxStatsDays)
	key := cacheKeyAdminStats + strconv.Itoa(days)

	var cached AdminStats
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	since := utcNow().AddDate(0, 0, -days)
	stats := &AdminStats{TimeframeDays: days}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalPositions, err = s.positions.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.RecentAdditions, err = s.positions.CountSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		stats.StatusBreakdown, err = s.positions.CountByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.DailyGrowth, err = s.positions.DailyGrowth(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute admin stats: %w", err)
	}

	s.toCache(ctx, key, stats)
	return stats, nil
}

func (s *positionService) ListPositions(ctx context.Context, filter ListFilter) (*PositionPage, error) {
	if filter.Status != "" && !types.IsValidPositionStatus(filter.Status) {
		return nil, ErrInvalidInput
	}
	if filter.From < 0 || filter.To < 0 || (filter.To > 0 && filter.From > filter.To) {
		return nil, ErrInvalidInput
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := clampLimit(filter.Limit, defaultPageLimit, maxPageLimit)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	positions, total, err := s.positions.List(ctx, repository.PositionFilter{
		Status: filter.Status,
		From:   filter.From,
		To:     filter.To,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	return &PositionPage{
		Positions: positions,
		Total:     total,
		Page:      page,
		Limit:     limit,
		Pages:     int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *positionService) ListBySponsor(ctx context.Context, sponsorID string) ([]*repository.Position, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	positions, err := s.positions.FindBySponsor(ctx, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sponsored positions: %w", err)
	}
	return positions, nil
}

// MyPosition assembles the member dashboard: the caller's position, sponsor,
// queue stats and the neighbourhood of five positions either side.
func (s *positionService) MyPosition(ctx context.Context, userID string) (*MyPositionView, error) {
	p, err := s.GetPosition(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &MyPositionView{Position: p}

	if p.SponsorID != nil {
		lctx, cancel := s.withTimeout(ctx)
		sponsor, err := s.directory.Lookup(lctx, *p.SponsorID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to load sponsor: %w", err)
		}
		if sponsor != nil {
			view.Sponsor = &SponsorInfo{ID: sponsor.ID, Name: sponsor.Name, Email: sponsor.Email}
		} else {
			view.Sponsor = &SponsorInfo{ID: *p.SponsorID, Name: derefOr(p.SponsorName, "")}
		}
	}

	if view.Stats, err = s.QueueStats(ctx, p.Position); err != nil {
		return nil, err
	}
	if view.Nearby, err = s.NearbyWindow(ctx, p.Position, myPositionRadius); err != nil {
		return nil, err
	}
	return view, nil
}

// ============================================
// Cache helpers
// ============================================

func (s *positionService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.GetCache(ctx, key, dest)
	s.metrics.cacheLookup(err == nil)
	return err == nil
}

func (s *positionService) toCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCache(ctx, key, value, s.cacheTTL); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Failed to write queue cache")
	}
}

func (s *positionService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCache(ctx, cachePatternQueue); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to invalidate queue cache")
	}
}

// ============================================
// Helpers
// ============================================

func normalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		name = strings.TrimSpace(string([]rune(name)[:maxDisplayNameLength]))
	}
	return name
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// positionPayload is the realtime representation of a position.
func positionPayload(p *repository.Position) map[string]interface{} {
	payload := map[string]interface{}{
		"position":          p.Position,
		"formattedPosition": powerline.FormattedPosition(p.Position),
		"userId":            p.UserID,
		"displayName":       p.DisplayName,
		"status":            p.Status,
		"joinedAt":          p.JoinedAt,
		"treeLevel":         powerline.TreeLevel(p.Position),
	}
	if parent, ok := powerline.ParentPosition(p.Position); ok {
		payload["parentPosition"] = parent
	}
	if p.SponsorID != nil {
		payload["sponsorId"] = *p.SponsorID
	}
	return payload
}
