package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/huangang/teamspace/internal/models"
	"gorm.io/gorm"
)

// MessageStore is the append-only chat log.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append persists a message. Whitespace-only content is rejected with
// ErrInvalidContent. The content is stored as sent.
func (s *MessageStore) Append(ctx context.Context, projectID, senderID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidContent
	}

	msg := models.Message{
		ProjectID: projectID,
		SenderID:  senderID,
		Content:   content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// ListByProject returns every message of a project in creation order.
// The auto-increment id breaks timestamp ties.
func (s *MessageStore) ListByProject(ctx context.Context, projectID uint) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// GetByID returns a single message.
func (s *MessageStore) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	result := s.db.WithContext(ctx).Limit(1).Find(&msg, id)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrMessageNotFound
	}
	return &msg, nil
}
