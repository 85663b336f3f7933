package services

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func init() {
	logger.SetOutput(io.Discard, zerolog.Disabled)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, "test")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, nickname string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Nickname: nickname, Email: username + "@example.com", IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// createProject creates a project owned by owner and adds members with chat enabled.
func createProject(t *testing.T, db *gorm.DB, title string, owner *models.User, members ...*models.User) *models.Project {
	t.Helper()
	project, err := NewProjectService(db).Create(context.Background(), &CreateProjectRequest{Title: title}, owner.ID)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, m := range members {
		pm := models.ProjectMember{ProjectID: project.ID, UserID: m.ID, Role: models.MemberRoleMember, CanChat: true}
		if err := db.Create(&pm).Error; err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return project
}

type pushRecord struct {
	UserID       uint
	Notification models.Notification
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []pushRecord
}

func (p *recordingPusher) PushNotification(userID uint, n *models.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushRecord{UserID: userID, Notification: *n})
	return true
}

func (p *recordingPusher) forUser(userID uint) []models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Notification
	for _, r := range p.pushes {
		if r.UserID == userID {
			out = append(out, r.Notification)
		}
	}
	return out
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*EmailTask
	err   error
}

func (q *recordingQueue) Enqueue(task *EmailTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }
