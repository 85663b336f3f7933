package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/teamspace/internal/models"
	"gorm.io/gorm"
)

// Capability names a permission flag on a project membership.
type Capability string

const (
	CapabilityChat        Capability = "chat"
	CapabilityManageTasks Capability = "manage_tasks"
	CapabilityManageFiles Capability = "manage_files"
	CapabilityChangeName  Capability = "change_name"
	CapabilityAddMembers  Capability = "add_members"
)

// Capabilities is the flag set a member holds in one project.
type Capabilities struct {
	Role        string `json:"role"`
	Chat        bool   `json:"chat"`
	ManageTasks bool   `json:"manage_tasks"`
	ManageFiles bool   `json:"manage_files"`
	ChangeName  bool   `json:"change_name"`
	AddMembers  bool   `json:"add_members"`
}

// Has reports whether the named capability is granted.
func (c *Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapabilityChat:
		return c.Chat
	case CapabilityManageTasks:
		return c.ManageTasks
	case CapabilityManageFiles:
		return c.ManageFiles
	case CapabilityChangeName:
		return c.ChangeName
	case CapabilityAddMembers:
		return c.AddMembers
	default:
		return false
	}
}

func capabilitiesFromMember(m *models.ProjectMember) *Capabilities {
	return &Capabilities{
		Role:        m.Role,
		Chat:        m.CanChat,
		ManageTasks: m.CanManageTasks,
		ManageFiles: m.CanManageFiles,
		ChangeName:  m.CanChangeName,
		AddMembers:  m.CanAddMembers,
	}
}

// RosterEntry is a current project member as seen by mention resolution
// and notification fan-out.
type RosterEntry struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type MembershipService struct {
	db *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{db: db}
}

// CapabilitiesOf looks up the membership of userID in projectID.
// ErrNotAMember is a hard deny for every action in the chat subsystem.
func (s *MembershipService) CapabilitiesOf(ctx context.Context, projectID, userID uint) (*Capabilities, error) {
	var member models.ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return capabilitiesFromMember(&member), nil
}

// Require returns ErrNotAMember or ErrCapabilityDenied unless userID holds
// the capability. An empty capability only requires membership.
func (s *MembershipService) Require(ctx context.Context, projectID, userID uint, capability Capability) (*Capabilities, error) {
	caps, err := s.CapabilitiesOf(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if capability != "" && !caps.Has(capability) {
		return nil, ErrCapabilityDenied
	}
	return caps, nil
}

// Roster returns the current members of a project ordered by user id.
func (s *MembershipService) Roster(ctx context.Context, projectID uint) ([]RosterEntry, error) {
	var members []models.ProjectMember
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Preload("User").
		Order("user_id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	roster := make([]RosterEntry, 0, len(members))
	for _, m := range members {
		// Soft-deleted users are not preloaded; deactivated ones receive nothing.
		if m.User == nil || !m.User.IsActive {
			continue
		}
		roster = append(roster, RosterEntry{
			UserID:      m.UserID,
			DisplayName: m.User.DisplayName(),
			Email:       m.User.Email,
		})
	}
	return roster, nil
}

// Members returns membership rows with their users for the REST listing.
func (s *MembershipService) Members(ctx context.Context, projectID uint) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Preload("User").
		Order("user_id ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

type AddMemberRequest struct {
	UserID         uint  `json:"user_id" binding:"required"`
	CanChat        *bool `json:"can_chat"`
	CanManageTasks bool  `json:"can_manage_tasks"`
	CanManageFiles bool  `json:"can_manage_files"`
	CanChangeName  bool  `json:"can_change_name"`
	CanAddMembers  bool  `json:"can_add_members"`
}

type UpdateCapabilitiesRequest struct {
	CanChat        *bool `json:"can_chat"`
	CanManageTasks *bool `json:"can_manage_tasks"`
	CanManageFiles *bool `json:"can_manage_files"`
	CanChangeName  *bool `json:"can_change_name"`
	CanAddMembers  *bool `json:"can_add_members"`
}

// AddMember adds a user to a project. The actor needs add_members; only the
// project creator may grant flags beyond chat.
func (s *MembershipService) AddMember(ctx context.Context, actorID, projectID uint, req *AddMemberRequest) (*models.ProjectMember, error) {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Require(ctx, projectID, actorID, CapabilityAddMembers); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if _, err := s.CapabilitiesOf(ctx, projectID, req.UserID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotAMember) {
		return nil, err
	}

	member := models.ProjectMember{
		ProjectID: projectID,
		UserID:    req.UserID,
		Role:      models.MemberRoleMember,
		CanChat:   true,
	}
	if req.CanChat != nil {
		member.CanChat = *req.CanChat
	}
	if project.CreatedBy == actorID {
		member.CanManageTasks = req.CanManageTasks
		member.CanManageFiles = req.CanManageFiles
		member.CanChangeName = req.CanChangeName
		member.CanAddMembers = req.CanAddMembers
	}

	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, err
	}
	member.User = &user
	return &member, nil
}

// UpdateCapabilities changes a member's flags. Creator only.
func (s *MembershipService) UpdateCapabilities(ctx context.Context, actorID, projectID, userID uint, req *UpdateCapabilitiesRequest) (*models.ProjectMember, error) {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.CreatedBy != actorID {
		return nil, ErrCapabilityDenied
	}

	var member models.ProjectMember
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAMember
		}
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.CanChat != nil {
		updates["can_chat"] = *req.CanChat
	}
	if req.CanManageTasks != nil {
		updates["can_manage_tasks"] = *req.CanManageTasks
	}
	if req.CanManageFiles != nil {
		updates["can_manage_files"] = *req.CanManageFiles
	}
	if req.CanChangeName != nil {
		updates["can_change_name"] = *req.CanChangeName
	}
	if req.CanAddMembers != nil {
		updates["can_add_members"] = *req.CanAddMembers
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&member).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Preload("User").First(&member, member.ID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember deletes a membership. Creator only; the creator cannot be removed.
func (s *MembershipService) RemoveMember(ctx context.Context, actorID, projectID, userID uint) error {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.CreatedBy != actorID || userID == project.CreatedBy {
		return ErrCapabilityDenied
	}

	result := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotAMember
	}
	return nil
}

func (s *MembershipService) loadProject(ctx context.Context, projectID uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}
