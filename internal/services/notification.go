package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/pkg/logger"
	"gorm.io/gorm"
)

const (
	DefaultPreviewLength = 120
	previewEllipsis      = "..."
)

// LivePusher delivers a persisted notification to a user's open connections.
// It returns false when nobody was connected; that is not an error.
type LivePusher interface {
	PushNotification(userID uint, n *models.Notification) bool
}

// NotificationService persists per-recipient notifications and pushes them live.
type NotificationService struct {
	db         *gorm.DB
	pusher     LivePusher
	queue      TaskQueue
	previewLen int
	appURL     string
}

func NewNotificationService(db *gorm.DB, pusher LivePusher, queue TaskQueue, previewLen int) *NotificationService {
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}
	return &NotificationService{
		db:         db,
		pusher:     pusher,
		queue:      queue,
		previewLen: previewLen,
	}
}

// SetAppURL sets the link placed in mention emails.
func (s *NotificationService) SetAppURL(url string) {
	s.appURL = url
}

// Preview truncates text to the configured length.
func (s *NotificationService) Preview(text string) string {
	return TruncatePreview(text, s.previewLen)
}

// TruncatePreview keeps the first limit characters of text and appends an
// ellipsis when anything was cut.
func TruncatePreview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + previewEllipsis
}

// NotifyProjectMembers creates one notification for every current member of
// the project except the sender and pushes each one live. Recipients are read
// at call time. A failure for one recipient is logged and does not stop the
// others; the returned count is the number of notifications persisted.
func (s *NotificationService) NotifyProjectMembers(ctx context.Context, projectID, senderID uint, text string) (int, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return 0, fmt.Errorf("load project: %w", err)
	}

	senderName := "Someone"
	var sender models.User
	if err := s.db.WithContext(ctx).First(&sender, senderID).Error; err == nil {
		senderName = sender.DisplayName()
	}

	// Same audience as MembershipService.Roster: active, not deleted.
	var recipients []uint
	if err := s.db.WithContext(ctx).
		Model(&models.ProjectMember{}).
		Joins("JOIN users ON users.id = project_members.user_id").
		Where("project_members.project_id = ? AND project_members.user_id <> ?", projectID, senderID).
		Where("users.is_active = ? AND users.deleted_at IS NULL", true).
		Order("project_members.user_id ASC").
		Pluck("project_members.user_id", &recipients).Error; err != nil {
		return 0, fmt.Errorf("load recipients: %w", err)
	}

	body := fmt.Sprintf("New message from %s in %s: %s", senderName, project.Title, s.Preview(text))

	count := 0
	for _, userID := range recipients {
		if _, err := s.deliver(ctx, userID, body); err != nil {
			logger.Warn().Err(err).
				Uint("project_id", projectID).
				Uint("user_id", userID).
				Msg("failed to persist notification")
			continue
		}
		count++
	}
	return count, nil
}

// NotifyMention creates a mention notification for recipient, pushes it live
// and enqueues an email. Email problems are logged and never returned.
func (s *NotificationService) NotifyMention(ctx context.Context, recipient RosterEntry, senderName, projectTitle, preview string) error {
	body := fmt.Sprintf("%s mentioned you in %s: %s", senderName, projectTitle, preview)
	if _, err := s.deliver(ctx, recipient.UserID, body); err != nil {
		return fmt.Errorf("persist mention notification: %w", err)
	}

	if recipient.Email == "" || s.queue == nil {
		return nil
	}
	task := &EmailTask{
		To:       recipient.Email,
		Subject:  fmt.Sprintf("%s mentioned you in %s", senderName, projectTitle),
		Template: TemplateMention,
		Data: map[string]string{
			"RecipientName": recipient.DisplayName,
			"SenderName":    senderName,
			"ProjectTitle":  projectTitle,
			"Preview":       preview,
			"AppURL":        s.appURL,
		},
	}
	if err := s.queue.Enqueue(task); err != nil {
		logger.Warn().Err(err).Uint("user_id", recipient.UserID).Msg("failed to enqueue mention email")
	}
	return nil
}

// deliver persists first, then pushes; the row stays queryable if the push misses.
func (s *NotificationService) deliver(ctx context.Context, userID uint, body string) (*models.Notification, error) {
	n := models.Notification{UserID: userID, Message: body}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, err
	}
	if s.pusher != nil {
		s.pusher.PushNotification(userID, &n)
	}
	return &n, nil
}

type NotificationListRequest struct {
	Page       int  `form:"page"`
	PageSize   int  `form:"page_size"`
	UnreadOnly bool `form:"unread_only"`
}

type NotificationListResponse struct {
	Total    int64                 `json:"total"`
	Unread   int64                 `json:"unread"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Items    []models.Notification `json:"items"`
}

// ListForUser returns a page of userID's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, req *NotificationListRequest) (*NotificationListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if req.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total, unread int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return nil, err
	}

	var items []models.Notification
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(req.PageSize).
		Find(&items).Error; err != nil {
		return nil, err
	}

	return &NotificationListResponse{
		Total:    total,
		Unread:   unread,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// MarkRead marks one notification as read. Only the owner may do this; a
// notification owned by someone else is reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of userID as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// PurgeRead deletes read notifications created before cutoff.
func (s *NotificationService) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
