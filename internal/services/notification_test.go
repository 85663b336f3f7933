package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/huangang/teamspace/internal/models"
)

func TestTruncatePreview(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected string
	}{
		{"short", "hello", 120, "hello"},
		{"exact", strings.Repeat("a", 120), 120, strings.Repeat("a", 120)},
		{"long", strings.Repeat("a", 130), 120, strings.Repeat("a", 120) + "..."},
		{"multibyte", "héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncatePreview(tt.text, tt.limit); got != tt.expected {
				t.Errorf("TruncatePreview() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestNotifyProjectMembers_ExcludesSender(t *testing.T) {
	db := setupTestDB(t)
	a := createUser(t, db, "a", "")
	b := createUser(t, db, "b", "")
	c := createUser(t, db, "c", "")
	project := createProject(t, db, "Apollo", a, b, c)

	pusher := &recordingPusher{}
	svc := NewNotificationService(db, pusher, &recordingQueue{}, 120)

	long := strings.Repeat("x", 200)
	count, err := svc.NotifyProjectMembers(context.Background(), project.ID, a.ID, long)
	if err != nil {
		t.Fatalf("NotifyProjectMembers() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, expected 2", count)
	}

	var rows []models.Notification
	db.Order("user_id ASC").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 notification rows, got %d", len(rows))
	}
	if rows[0].UserID != b.ID || rows[1].UserID != c.ID {
		t.Errorf("unexpected recipients: %d, %d", rows[0].UserID, rows[1].UserID)
	}
	wantPreview := strings.Repeat("x", 120) + "..."
	if !strings.HasSuffix(rows[0].Message, wantPreview) {
		t.Errorf("message %q should end with the truncated preview", rows[0].Message)
	}
	if strings.Contains(rows[0].Message, strings.Repeat("x", 121)) {
		t.Error("preview exceeds 120 characters")
	}

	if len(pusher.forUser(b.ID)) != 1 || len(pusher.forUser(c.ID)) != 1 {
		t.Error("each recipient should get one live push")
	}
	if len(pusher.forUser(a.ID)) != 0 {
		t.Error("sender must not be notified")
	}
}

func TestNotifyProjectMembers_SkipsInactiveAndDeletedUsers(t *testing.T) {
	db := setupTestDB(t)
	a := createUser(t, db, "a", "")
	active := createUser(t, db, "active", "")
	inactive := createUser(t, db, "inactive", "")
	deleted := createUser(t, db, "deleted", "")
	project := createProject(t, db, "Apollo", a, active, inactive, deleted)
	db.Model(inactive).Update("is_active", false)
	db.Delete(deleted)

	pusher := &recordingPusher{}
	svc := NewNotificationService(db, pusher, nil, 120)
	count, err := svc.NotifyProjectMembers(context.Background(), project.ID, a.ID, "hello")
	if err != nil {
		t.Fatalf("NotifyProjectMembers() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, expected 1", count)
	}
	if len(pusher.forUser(inactive.ID)) != 0 || len(pusher.forUser(deleted.ID)) != 0 {
		t.Error("inactive and deleted users must not be notified")
	}

	roster, err := NewMembershipService(db).Roster(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	var ids []uint
	for _, entry := range roster {
		ids = append(ids, entry.UserID)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != active.ID {
		t.Errorf("roster user ids = %v, expected [%d %d]", ids, a.ID, active.ID)
	}
}

func TestNotifyProjectMembers_UnknownProject(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, nil, nil, 0)
	if _, err := svc.NotifyProjectMembers(context.Background(), 404, 1, "hi"); err == nil {
		t.Error("expected error for unknown project")
	}
}

func TestNotifyMention_PersistsPushesAndEnqueues(t *testing.T) {
	db := setupTestDB(t)
	pusher := &recordingPusher{}
	queue := &recordingQueue{}
	svc := NewNotificationService(db, pusher, queue, 120)
	svc.SetAppURL("https://teamspace.example.com")

	recipient := RosterEntry{UserID: 9, DisplayName: "Bob", Email: "bob@example.com"}
	if err := svc.NotifyMention(context.Background(), recipient, "Alice", "Apollo", "Hello @Bob"); err != nil {
		t.Fatalf("NotifyMention() error = %v", err)
	}

	var n models.Notification
	if err := db.Where("user_id = ?", 9).First(&n).Error; err != nil {
		t.Fatalf("mention notification not persisted: %v", err)
	}
	if n.Message != "Alice mentioned you in Apollo: Hello @Bob" {
		t.Errorf("Message = %q", n.Message)
	}
	if len(pusher.forUser(9)) != 1 {
		t.Error("mention should be pushed live")
	}
	if len(queue.tasks) != 1 {
		t.Fatalf("expected 1 email task, got %d", len(queue.tasks))
	}
	task := queue.tasks[0]
	if task.To != "bob@example.com" || task.Template != TemplateMention {
		t.Errorf("unexpected task: %+v", task)
	}
	if task.Data["AppURL"] != "https://teamspace.example.com" {
		t.Errorf("AppURL = %q", task.Data["AppURL"])
	}
}

func TestNotifyMention_EnqueueFailureIsSwallowed(t *testing.T) {
	db := setupTestDB(t)
	queue := &recordingQueue{err: errors.New("redis down")}
	svc := NewNotificationService(db, nil, queue, 120)

	err := svc.NotifyMention(context.Background(), RosterEntry{UserID: 3, Email: "c@example.com"}, "A", "P", "hey")
	if err != nil {
		t.Errorf("email failure must not propagate, got %v", err)
	}
	var count int64
	db.Model(&models.Notification{}).Where("user_id = ?", 3).Count(&count)
	if count != 1 {
		t.Errorf("notification should still be persisted, got %d", count)
	}
}

func TestMarkRead_OwnerOnly(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, nil, nil, 120)
	ctx := context.Background()

	n := models.Notification{UserID: 1, Message: "hi"}
	db.Create(&n)

	if err := svc.MarkRead(ctx, 2, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("non-owner should get ErrNotificationNotFound, got %v", err)
	}
	if err := svc.MarkRead(ctx, 1, n.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	var reloaded models.Notification
	db.First(&reloaded, n.ID)
	if !reloaded.IsRead {
		t.Error("notification should be read")
	}
}

func TestListForUser_AndMarkAllRead(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, nil, nil, 120)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		db.Create(&models.Notification{UserID: 1, Message: "n"})
	}
	db.Create(&models.Notification{UserID: 2, Message: "other"})

	resp, err := svc.ListForUser(ctx, 1, &NotificationListRequest{})
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if resp.Total != 3 || resp.Unread != 3 || len(resp.Items) != 3 {
		t.Errorf("unexpected list response: total=%d unread=%d items=%d", resp.Total, resp.Unread, len(resp.Items))
	}

	updated, err := svc.MarkAllRead(ctx, 1)
	if err != nil || updated != 3 {
		t.Errorf("MarkAllRead() = %d, %v", updated, err)
	}

	resp, _ = svc.ListForUser(ctx, 1, &NotificationListRequest{UnreadOnly: true})
	if resp.Total != 0 || resp.Unread != 0 {
		t.Errorf("expected no unread, got total=%d unread=%d", resp.Total, resp.Unread)
	}
}

func TestPurgeRead(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, nil, nil, 120)
	old := time.Now().Add(-48 * time.Hour)

	db.Create(&models.Notification{UserID: 1, Message: "old read", IsRead: true, CreatedAt: old})
	db.Create(&models.Notification{UserID: 1, Message: "old unread", CreatedAt: old})
	db.Create(&models.Notification{UserID: 1, Message: "new read", IsRead: true})

	removed, err := svc.PurgeRead(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeRead() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, expected 1", removed)
	}
}
