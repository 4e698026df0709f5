package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/db"
	"github.com/Marga-Ghale/powerline-backend/internal/powerline"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	enrolled []map[string]interface{}
	changes  []string
	recruits map[string]int
}

func (b *recordingBroadcaster) BroadcastPositionEnrolled(position map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enrolled = append(b.enrolled, position)
}

func (b *recordingBroadcaster) BroadcastPositionStatusChanged(position map[string]interface{}, oldStatus, newStatus string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, oldStatus+"->"+newStatus)
}

func (b *recordingBroadcaster) BroadcastQueueStats(stats map[string]interface{}) {}

func (b *recordingBroadcaster) NotifySponsorRecruit(sponsorID string, recruit map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recruits == nil {
		b.recruits = make(map[string]int)
	}
	b.recruits[sponsorID]++
}

// collidingRepo reports every insert as a lost race for the number.
type collidingRepo struct {
	*repository.MemoryPositionRepository
	creates int32
}

func (r *collidingRepo) Create(ctx context.Context, p *repository.Position) error {
	atomic.AddInt32(&r.creates, 1)
	return repository.ErrDuplicatePosition
}

// interleavingRepo lets another writer change the status just before each
// AdvanceStatus write lands.
type interleavingRepo struct {
	*repository.MemoryPositionRepository
	before string
}

func (r *interleavingRepo) AdvanceStatus(ctx context.Context, position int64, update repository.StatusUpdate) (*repository.Position, string, error) {
	if _, _, err := r.MemoryPositionRepository.AdvanceStatus(ctx, position, repository.StatusUpdate{Status: r.before, At: update.At}); err != nil {
		return nil, "", err
	}
	return r.MemoryPositionRepository.AdvanceStatus(ctx, position, update)
}

type fixture struct {
	svc         PositionService
	positions   *repository.MemoryPositionRepository
	users       *repository.MemoryUserRepository
	activities  *repository.MemoryActivityRepository
	broadcaster *recordingBroadcaster
}

func newFixture(t *testing.T, mutate func(*PositionServiceConfig)) *fixture {
	t.Helper()
	f := &fixture{
		positions:   repository.NewMemoryPositionRepository(),
		users:       repository.NewMemoryUserRepository(),
		activities:  repository.NewMemoryActivityRepository(),
		broadcaster: &recordingBroadcaster{},
	}
	cfg := PositionServiceConfig{
		Positions:   f.positions,
		Directory:   NewUserService(f.users),
		Activity:    NewActivityService(f.activities),
		Broadcaster: f.broadcaster,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.svc = NewPositionService(cfg)
	return f
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u := &repository.User{Email: name + "@example.com", Name: name}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}

func (f *fixture) enroll(t *testing.T, userID string) *repository.Position {
	t.Helper()
	p, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: userID})
	require.NoError(t, err)
	return p
}

func TestEnrollAssignsSequentialPositions(t *testing.T) {
	f := newFixture(t, nil)

	for i := int64(1); i <= 5; i++ {
		p := f.enroll(t, fmt.Sprintf("user-%d", i))
		assert.Equal(t, i, p.Position)
		assert.Equal(t, types.PositionActive, p.Status)
		assert.Equal(t, types.SourcePowerLineEnrollment, p.Source)
		assert.Equal(t, types.DefaultDisplayName, p.DisplayName)
	}

	next, err := f.svc.NextPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), next)

	recent, err := f.activities.FindRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
	assert.Len(t, f.broadcaster.enrolled, 5)
}

func TestEnrollRejectsSecondPositionForUser(t *testing.T) {
	f := newFixture(t, nil)
	first := f.enroll(t, "user-1")

	existing, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrDuplicateUserPosition)
	require.NotNil(t, existing)
	assert.Equal(t, first.Position, existing.Position)

	count, _ := f.positions.Count(context.Background())
	assert.Equal(t, int64(1), count)
}

type failingNotifier struct {
	notified []int64
}

func (n *failingNotifier) NotifyEnrolled(ctx context.Context, p *repository.Position) error {
	n.notified = append(n.notified, p.Position)
	return errors.New("mail relay down")
}

func TestEnrollNotifiesWithoutFailing(t *testing.T) {
	notifier := &failingNotifier{}
	f := newFixture(t, func(cfg *PositionServiceConfig) { cfg.Notifier = notifier })

	f.enroll(t, "user-1")
	f.enroll(t, "user-2")

	assert.Equal(t, []int64{1, 2}, notifier.notified)
	assert.Len(t, f.broadcaster.enrolled, 2)
}

func TestEnrollValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, EnrollRequest{UserID: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Enroll(ctx, EnrollRequest{UserID: "user-1", Source: "carrier_pigeon"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	self := "user-1"
	_, err = f.svc.Enroll(ctx, EnrollRequest{UserID: "user-1", SponsorID: &self})
	assert.ErrorIs(t, err, ErrInvalidSponsor)

	ghost := "0b7e3d1a-0000-4000-8000-00000000dead"
	_, err = f.svc.Enroll(ctx, EnrollRequest{UserID: "user-1", SponsorID: &ghost})
	assert.ErrorIs(t, err, ErrInvalidSponsor)

	count, _ := f.positions.Count(ctx)
	assert.Zero(t, count)
}

func TestEnrollWithSponsor(t *testing.T) {
	f := newFixture(t, nil)
	sponsorID := f.user(t, "Grace")
	f.enroll(t, sponsorID)

	long := "  Ada Lovelace the Enchantress of Numbers and First Programmer Ever  "
	email := " ada@example.com "
	p, err := f.svc.Enroll(context.Background(), EnrollRequest{
		UserID:       "user-ada",
		SponsorID:    &sponsorID,
		DisplayName:  long,
		Source:       types.SourceDirectInvitation,
		ContactEmail: &email,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), p.Position)
	require.NotNil(t, p.SponsorID)
	assert.Equal(t, sponsorID, *p.SponsorID)
	require.NotNil(t, p.SponsorName)
	assert.Equal(t, "Grace", *p.SponsorName)
	assert.LessOrEqual(t, len([]rune(p.DisplayName)), maxDisplayNameLength)
	assert.Equal(t, "ada@example.com", *p.ContactEmail)
	assert.Equal(t, 1, f.broadcaster.recruits[sponsorID])

	sponsored, err := f.svc.ListBySponsor(context.Background(), sponsorID)
	require.NoError(t, err)
	require.Len(t, sponsored, 1)
	assert.Equal(t, "user-ada", sponsored[0].UserID)
}

func TestEnrollConcurrentCallersGetDistinctPositions(t *testing.T) {
	const callers = 8
	f := newFixture(t, func(cfg *PositionServiceConfig) { cfg.MaxAttempts = callers })

	// hold every caller after its first max read so they all race for 1
	var arrived int32
	release := make(chan struct{})
	f.positions.SetAfterMaxRead(func() {
		if atomic.AddInt32(&arrived, 1) == callers {
			close(release)
		}
		<-release
	})

	var wg sync.WaitGroup
	results := make([]int64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: fmt.Sprintf("racer-%d", i)})
			errs[i] = err
			if p != nil {
				results[i] = p.Position
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Slice(results, func(a, b int) bool { return results[a] < results[b] })
	for i, n := range results {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestEnrollGivesUpAfterMaxAttempts(t *testing.T) {
	repo := &collidingRepo{MemoryPositionRepository: repository.NewMemoryPositionRepository()}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	f := newFixture(t, func(cfg *PositionServiceConfig) {
		cfg.Positions = repo
		cfg.MaxAttempts = 3
		cfg.Metrics = metrics
	})

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrQueueContention)
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.creates))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.enrollRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.enrollTotal.WithLabelValues("contention")))
	assert.Empty(t, f.broadcaster.enrolled)
}

func TestEnrollStopsWhenContextCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Enroll(ctx, EnrollRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.enroll(t, "user-1")
	solo, err := f.svc.QueueStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Position: 1, TotalPositions: 1, Percentile: 0}, *solo)

	for i := 2; i <= 4; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}
	stats, err := f.svc.QueueStats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PositionsAhead)
	assert.Equal(t, int64(2), stats.PositionsBehind)
	assert.Equal(t, int64(4), stats.TotalPositions)
	assert.Equal(t, 25, stats.Percentile)

	_, err = f.svc.QueueStats(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.QueueStats(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNearbyWindowClampsAtRoot(t *testing.T) {
	f := newFixture(t, nil)
	for i := 1; i <= 12; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}

	nearby, err := f.svc.NearbyWindow(context.Background(), 3, 5)
	require.NoError(t, err)
	require.Len(t, nearby, 8)
	assert.Equal(t, int64(1), nearby[0].Position)
	assert.Equal(t, int64(8), nearby[7].Position)

	_, err = f.svc.NearbyWindow(context.Background(), 3, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTreeRangeGroupsByWindowLevel(t *testing.T) {
	f := newFixture(t, nil)
	for i := 1; i <= 10; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}

	tree, err := f.svc.TreeRange(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), tree.End)
	assert.Equal(t, 8, tree.Total)
	assert.Len(t, tree.ByLevel[0], 1)
	assert.Len(t, tree.ByLevel[1], 2)
	assert.Len(t, tree.ByLevel[2], 4)

	// 8 sits at window level 3, past the requested depth
	assert.NotContains(t, tree.ByLevel, 3)
	for _, level := range tree.ByLevel {
		for _, p := range level {
			assert.NotEqual(t, int64(8), p.Position)
		}
	}

	// a window that runs past the tail only holds what exists
	tail, err := f.svc.TreeRange(context.Background(), 8, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(11), tail.End)
	assert.Equal(t, 3, tail.Total)

	_, err = f.svc.TreeRange(context.Background(), 1, 21)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAdvanceStatusStampsMilestoneOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.enroll(t, "user-1")

	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	restore := utcNow
	t.Cleanup(func() { utcNow = restore })

	utcNow = func() time.Time { return first }
	note := "signed up at the webinar"
	p, err := f.svc.AdvanceStatus(ctx, 1, types.PositionEnrolled, &note, "admin-1")
	require.NoError(t, err)
	assert.True(t, p.Progression.HasEnrolled)
	assert.Equal(t, first, *p.Progression.EnrollmentDate)

	utcNow = func() time.Time { return first.Add(72 * time.Hour) }
	p, err = f.svc.AdvanceStatus(ctx, 1, types.PositionEnrolled, nil, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, first, *p.Progression.EnrollmentDate)
	assert.Equal(t, note, *p.Notes)

	assert.Equal(t, []string{"active->enrolled", "enrolled->enrolled"}, f.broadcaster.changes)

	audit, err := f.activities.FindByEntity(ctx, types.EntityPowerLinePosition, "1", 10)
	require.NoError(t, err)
	assert.Len(t, audit, 3)
}

func TestAdvanceStatusReportsTheStatusItReplaced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.enroll(t, "user-1")

	racing := newFixture(t, func(cfg *PositionServiceConfig) {
		cfg.Positions = &interleavingRepo{MemoryPositionRepository: f.positions, before: types.PositionSuspended}
	})
	_, err := racing.svc.AdvanceStatus(ctx, 1, types.PositionInactive, nil, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"suspended->inactive"}, racing.broadcaster.changes)

	audit, err := racing.activities.FindByEntity(ctx, types.EntityPowerLinePosition, "1", 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	status := audit[0].Changes["status"].(map[string]interface{})
	assert.Equal(t, types.PositionSuspended, status["from"])
	assert.Equal(t, types.PositionInactive, status["to"])
}

func TestAdvanceStatusValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.enroll(t, "user-1")

	_, err := f.svc.AdvanceStatus(ctx, 1, "graduated", nil, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.AdvanceStatus(ctx, 42, types.PositionPending, nil, "admin-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AdvanceStatus(ctx, powerline.MaxPosition+1, types.PositionPending, nil, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnrollNeverReusesNumbersAfterStatusChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.enroll(t, "user-a")
	b := f.enroll(t, "user-b")
	require.Equal(t, int64(1), a.Position)
	require.Equal(t, int64(2), b.Position)

	_, err := f.svc.AdvanceStatus(ctx, 1, types.PositionSuspended, nil, "admin-1")
	require.NoError(t, err)
	_, err = f.svc.AdvanceStatus(ctx, 1, types.PositionInactive, nil, "admin-1")
	require.NoError(t, err)

	c := f.enroll(t, "user-c")
	assert.Equal(t, int64(3), c.Position)

	next, err := f.svc.NextPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), next)
	assert.NotContains(t, []int64{1, 2}, next)
}

func TestPositionLookupsRejectNumbersPastTheCeiling(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.enroll(t, "user-1")
	tooBig := powerline.MaxPosition + 1

	_, err := f.svc.GetByNumber(ctx, tooBig)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.QueueStats(ctx, tooBig)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.NearbyWindow(ctx, math.MaxInt64, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.TreeRange(ctx, math.MaxInt64/2+1, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.GetByNumber(ctx, powerline.MaxPosition)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueStatusIsCachedUntilEnrollment(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := db.NewRedisDB(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	metrics := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, func(cfg *PositionServiceConfig) {
		cfg.Cache = cache
		cfg.Metrics = metrics
	})
	ctx := context.Background()
	f.enroll(t, "user-1")

	status, err := f.svc.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.TotalPositions)
	assert.True(t, mr.Exists("powerline:cache:"+cacheKeyQueueStatus))

	cached, err := f.svc.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.TotalPositions)
	require.Len(t, cached.QueueSample, 1)
	assert.Equal(t, "user-1", cached.QueueSample[0].UserID)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheRequests.WithLabelValues("hit")))

	f.enroll(t, "user-2")
	assert.False(t, mr.Exists("powerline:cache:"+cacheKeyQueueStatus))

	fresh, err := f.svc.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.TotalPositions)
	assert.Equal(t, int64(2), fresh.RecentAdditions)
}

func TestAdminStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}
	_, err := f.svc.AdvanceStatus(ctx, 2, types.PositionPending, nil, "admin-1")
	require.NoError(t, err)

	stats, err := f.svc.AdminStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultStatsDays, stats.TimeframeDays)
	assert.Equal(t, int64(3), stats.TotalPositions)
	assert.Equal(t, int64(3), stats.RecentAdditions)
	assert.Equal(t, map[string]int64{"active": 2, "pending": 1}, stats.StatusBreakdown)
	require.Len(t, stats.DailyGrowth, 1)
	assert.Equal(t, int64(3), stats.DailyGrowth[0].Count)
}

func TestListPositionsPaginates(t *testing.T) {
	f := newFixture(t, nil)
	for i := 1; i <= 7; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}

	page, err := f.svc.ListPositions(context.Background(), ListFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Positions, 3)
	assert.Equal(t, int64(4), page.Positions[0].Position)

	_, err = f.svc.ListPositions(context.Background(), ListFilter{Status: "nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.ListPositions(context.Background(), ListFilter{From: 5, To: 2})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMyPosition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sponsorID := f.user(t, "Grace")
	f.enroll(t, sponsorID)

	_, err := f.svc.Enroll(ctx, EnrollRequest{UserID: "user-ada", SponsorID: &sponsorID})
	require.NoError(t, err)

	view, err := f.svc.MyPosition(ctx, "user-ada")
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Position.Position)
	require.NotNil(t, view.Sponsor)
	assert.Equal(t, "Grace", view.Sponsor.Name)
	assert.Equal(t, "Grace@example.com", view.Sponsor.Email)
	assert.Equal(t, int64(1), view.Stats.PositionsAhead)
	assert.Len(t, view.Nearby, 2)

	_, err = f.svc.MyPosition(ctx, "stranger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGrowthFeedNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	for i := 1; i <= 3; i++ {
		f.enroll(t, fmt.Sprintf("user-%d", i))
	}

	feed, err := f.svc.GrowthFeed(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, int64(3), feed[0].Position)
}

func TestNormalizeDisplayName(t *testing.T) {
	assert.Equal(t, types.DefaultDisplayName, normalizeDisplayName("   "))
	assert.Equal(t, "Ada", normalizeDisplayName(" Ada "))

	long := ""
	for i := 0; i < 60; i++ {
		long += "é"
	}
	assert.Len(t, []rune(normalizeDisplayName(long)), maxDisplayNameLength)
}
