package services

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/huangang/teamspace/internal/models"
	"gorm.io/gorm"
)

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type CreateProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// Create creates a project and makes the creator its owner with every flag set.
func (s *ProjectService) Create(ctx context.Context, req *CreateProjectRequest, userID uint) (*models.Project, error) {
	project := models.Project{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		CreatedBy:   userID,
	}
	if project.Title == "" || strings.IndexFunc(project.Title, unicode.IsControl) >= 0 {
		return nil, ErrInvalidTitle
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		owner := models.ProjectMember{
			ProjectID:      project.ID,
			UserID:         userID,
			Role:           models.MemberRoleOwner,
			CanChat:        true,
			CanManageTasks: true,
			CanManageFiles: true,
			CanChangeName:  true,
			CanAddMembers:  true,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// ListForUser returns the projects userID belongs to, newest first.
func (s *ProjectService) ListForUser(ctx context.Context, userID uint) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at DESC").
		Find(&projects).Error
	return projects, err
}
