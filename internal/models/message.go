package models

import "time"

// Message is an immutable chat line. There is no update path.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index:idx_messages_project_time,priority:1;not null" json:"project_id"`
	SenderID  uint      `gorm:"index;not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_messages_project_time,priority:2" json:"created_at"`
}

// MessageReaction records that a user reacted to a message with an emoji.
// The unique index is what prevents duplicate reactions under concurrent toggles.
type MessageReaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"uniqueIndex:idx_reaction_triple;not null" json:"message_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_reaction_triple;not null" json:"user_id"`
	Emoji     string    `gorm:"uniqueIndex:idx_reaction_triple;size:64;not null" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a per-user inbox entry.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IsRead    bool      `gorm:"not null;index" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName overrides
func (Message) TableName() string         { return "messages" }
func (MessageReaction) TableName() string { return "message_reactions" }
func (Notification) TableName() string    { return "notifications" }
