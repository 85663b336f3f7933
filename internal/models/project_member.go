package models

import (
	"time"
)

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// ProjectMember represents a user's membership and capability flags within a project.
// Rows are hard-deleted on removal so the (project, user) pair can be re-added.
// Flags carry no column default: gorm would otherwise replace an explicit false.
type ProjectMember struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProjectID      uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"project_id"`
	Project        *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	UserID         uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"user_id"`
	User           *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role           string    `gorm:"size:50;default:member" json:"role"` // owner, member
	CanManageTasks bool      `gorm:"not null" json:"can_manage_tasks"`
	CanManageFiles bool      `gorm:"not null" json:"can_manage_files"`
	CanChat        bool      `gorm:"not null" json:"can_chat"`
	CanChangeName  bool      `gorm:"not null" json:"can_change_name"`
	CanAddMembers  bool      `gorm:"not null" json:"can_add_members"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
