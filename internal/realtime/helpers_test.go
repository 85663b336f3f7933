package realtime

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/pkg/logger"
)

func init() {
	logger.SetOutput(io.Discard, zerolog.Disabled)
}

// newTestClient returns a hub-tracked client without a network connection.
func newTestClient(hub *Hub, userID uint) *Client {
	c := NewClient(hub, nil, userID)
	hub.Add(c)
	return c
}

// drain returns every event currently buffered for c.
func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(events []Event, eventType string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "realtime.db") + "?_busy_timeout=5000"
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

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*services.EmailTask
	err   error
}

func (q *recordingQueue) Enqueue(task *services.EmailTask) error {
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

func (q *recordingQueue) recipients() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, task.To)
	}
	return out
}

// fixture wires the real services on sqlite behind a gateway.
type fixture struct {
	db      *gorm.DB
	hub     *Hub
	gateway *Gateway
	queue   *recordingQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	hub := NewHub(64)
	queue := &recordingQueue{}
	notifications := services.NewNotificationService(db, hub, queue, services.DefaultPreviewLength)

	gw := NewGateway(hub, GatewayDeps{
		Membership:    services.NewMembershipService(db),
		Messages:      services.NewMessageStore(db),
		Reactions:     services.NewReactionLedger(db),
		Users:         services.NewUserService(db),
		Projects:      services.NewProjectService(db),
		Notifications: notifications,
	})
	return &fixture{db: db, hub: hub, gateway: gw, queue: queue}
}

func (f *fixture) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", IsActive: true}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// project creates a project owned by owner with members holding chat.
func (f *fixture) project(t *testing.T, title string, owner *models.User, members ...*models.User) *models.Project {
	t.Helper()
	p, err := services.NewProjectService(f.db).Create(context.Background(), &services.CreateProjectRequest{Title: title}, owner.ID)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, m := range members {
		pm := models.ProjectMember{ProjectID: p.ID, UserID: m.ID, Role: models.MemberRoleMember, CanChat: true}
		if err := f.db.Create(&pm).Error; err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return p
}

// connect returns a client registered to its user room and joined to projectIDs.
func (f *fixture) connect(userID uint, projectIDs ...uint) *Client {
	c := newTestClient(f.hub, userID)
	f.hub.Register(c, userID)
	for _, id := range projectIDs {
		f.hub.JoinProject(c, id)
	}
	return c
}

func (f *fixture) countMessages(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func (f *fixture) notificationsFor(t *testing.T, userID uint) []models.Notification {
	t.Helper()
	var out []models.Notification
	if err := f.db.Where("user_id = ?", userID).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return out
}
