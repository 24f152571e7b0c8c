package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type announcementRepository interface {
	Create(ctx context.Context, announcement *models.Announcement) error
	ListByCourse(ctx context.Context, courseID string) ([]models.AnnouncementDetail, error)
}

// PostAnnouncementRequest describes announcement payload.
type PostAnnouncementRequest struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body" validate:"required"`
}

// AnnouncementService orchestrates course announcements. Its own logic is
// thin; it exists because posting shares the course-management contract.
type AnnouncementService struct {
	repo      announcementRepository
	courses   courseReader
	guard     *AuthzGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs AnnouncementService.
func NewAnnouncementService(repo announcementRepository, courses courseReader, guard *AuthzGuard, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, courses: courses, guard: guard, validator: validate, logger: logger}
}

// Post publishes an announcement to a course.
func (s *AnnouncementService) Post(ctx context.Context, actor models.Actor, courseID string, req PostAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionPostAnnouncement); err != nil {
		return nil, err
	}

	announcement := &models.Announcement{
		CourseID: courseID,
		PosterID: actor.ID,
		Title:    req.Title,
		Body:     req.Body,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post announcement")
	}
	return announcement, nil
}

// ListByCourse returns course announcements for enrolled students and staff.
func (s *AnnouncementService) ListByCourse(ctx context.Context, actor models.Actor, courseID string) ([]models.AnnouncementDetail, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireView(ctx, actor, course); err != nil {
		return nil, err
	}

	announcements, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return announcements, nil
}

func (s *AnnouncementService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
