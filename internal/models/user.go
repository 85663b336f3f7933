package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User represents a platform account. Credentials live with the auth
// collaborator; only identity and contact fields are kept here.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email     string         `gorm:"size:255" json:"email"`
	Nickname  string         `gorm:"size:100" json:"nickname"`
	Avatar    string         `gorm:"size:500" json:"avatar"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// DisplayName returns the nickname when set, otherwise the username.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Nickname); name != "" {
		return name
	}
	return u.Username
}
