package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	retentionSchedule = "0 3 * * 0"
	jobTimeout        = time.Minute
)

// QueueBroadcaster receives the periodic queue snapshot.
type QueueBroadcaster interface {
	BroadcastQueueStats(stats map[string]interface{})
}

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron          *cron.Cron
	services      *service.Services
	broadcaster   QueueBroadcaster
	snapshotSpec  string
	retentionDays int
	log           *logrus.Entry
}

// NewScheduler creates a new scheduler. broadcaster may be nil, in which case
// snapshots only refresh the cache.
func NewScheduler(services *service.Services, broadcaster QueueBroadcaster, snapshotSpec string, retentionDays int) *Scheduler {
	log := logrus.WithField("component", "cron")
	cl := cronLogger{entry: log}
	return &Scheduler{
		// a slow snapshot must not stack up behind itself; a panicking job is logged
		cron:          cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		services:      services,
		broadcaster:   broadcaster,
		snapshotSpec:  snapshotSpec,
		retentionDays: retentionDays,
		log:           log,
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Refresh the cached queue status and push it to the powerline room
	if _, err := s.cron.AddFunc(s.snapshotSpec, func() {
		s.log.Debug("Running queue snapshot...")
		s.snapshotQueue()
	}); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", s.snapshotSpec, err)
	}

	// Activity retention - Run every Sunday at 3 AM
	if _, err := s.cron.AddFunc(retentionSchedule, func() {
		s.log.Info("Running activity cleanup...")
		s.cleanupActivities()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) snapshotQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	status, err := s.services.Position.RefreshQueueStatus(ctx)
	if err != nil {
		s.log.WithError(err).Error("Error refreshing queue status")
		return
	}
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastQueueStats(map[string]interface{}{
		"totalPositions":  status.TotalPositions,
		"recentAdditions": status.RecentAdditions,
		"generatedAt":     status.GeneratedAt,
	})
}

func (s *Scheduler) cleanupActivities() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.services.Activity.Cleanup(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Error cleaning up activities")
		return
	}
	s.log.WithFields(logrus.Fields{"deleted": deleted, "cutoff": cutoff}).Info("Activity cleanup finished")
}
