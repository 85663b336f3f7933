package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/huangang/teamspace/internal/models"
)

// SchedulerLocks lets several instances share one cron schedule. The first
// instance to insert a (name, key) row owns that run.
type SchedulerLocks struct {
	db     *gorm.DB
	holder string
}

func NewSchedulerLocks(db *gorm.DB) *SchedulerLocks {
	host, _ := os.Hostname()
	return &SchedulerLocks{
		db:     db,
		holder: fmt.Sprintf("%s/%s", host, uuid.NewString()[:8]),
	}
}

// Holder identifies this instance in the locked_by column.
func (l *SchedulerLocks) Holder() string { return l.holder }

// TryAcquire claims the run identified by name and key. Expired rows for
// name are removed first so the table does not grow without bound.
func (l *SchedulerLocks) TryAcquire(ctx context.Context, name, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	db := l.db.WithContext(ctx)

	if err := db.Where("lock_name = ? AND expires_at < ?", name, now).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		return false, fmt.Errorf("expire scheduler locks: %w", err)
	}

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  l.holder,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if res.Error != nil {
		return false, fmt.Errorf("acquire scheduler lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
