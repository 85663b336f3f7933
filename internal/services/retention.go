package services

import (
	"context"
	"time"

	"github.com/huangang/teamspace/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RetentionScheduler periodically purges read notifications.
type RetentionScheduler struct {
	notifications *NotificationService
	retention     time.Duration
	spec          string
	cron          *cron.Cron
	locks         *SchedulerLocks
	now           func() time.Time
}

const retentionLockName = "notification_cleanup"

func NewRetentionScheduler(notifications *NotificationService, retentionDays int, spec string) *RetentionScheduler {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if spec == "" {
		spec = "0 3 * * *"
	}
	return &RetentionScheduler{
		notifications: notifications,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		spec:          spec,
		now:           time.Now,
	}
}

// UseLocks makes each scheduled run execute on one instance only.
func (s *RetentionScheduler) UseLocks(locks *SchedulerLocks) {
	s.locks = locks
}

// Start registers the cleanup job. An invalid cron spec is returned as an error.
func (s *RetentionScheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.runScheduled); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info().Str("cron", s.spec).Dur("retention", s.retention).Msg("notification cleanup scheduled")
	return nil
}

func (s *RetentionScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *RetentionScheduler) runScheduled() {
	ctx := context.Background()
	if s.locks != nil {
		key := s.now().UTC().Format("2006-01-02T15:04")
		ok, err := s.locks.TryAcquire(ctx, retentionLockName, key, 2*time.Hour)
		if err != nil {
			logger.Error().Err(err).Msg("notification cleanup lock failed")
			return
		}
		if !ok {
			logger.Debug().Str("key", key).Msg("notification cleanup claimed by another instance")
			return
		}
	}
	s.RunOnce(ctx)
}

// RunOnce purges read notifications older than the retention window.
func (s *RetentionScheduler) RunOnce(ctx context.Context) int64 {
	removed, err := s.notifications.PurgeRead(ctx, time.Now().Add(-s.retention))
	if err != nil {
		logger.Error().Err(err).Msg("notification cleanup failed")
		return 0
	}
	if removed > 0 {
		logger.Info().Int64("removed", removed).Msg("purged read notifications")
	}
	return removed
}
