package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/repository"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	Update(ctx context.Context, id string, upd models.CourseUpdate) (*models.Course, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, term string) ([]models.CourseDetail, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Code         string  `json:"code" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description"`
	Department   string  `json:"department"`
	Credits      int     `json:"credits" validate:"gte=0"`
	Schedule     string  `json:"schedule"`
	MaxSeats     int     `json:"max_seats" validate:"gte=0"`
	InstructorID string  `json:"instructor_id" validate:"required"`
	TAID         *string `json:"ta_id,omitempty"`
}

// UpdateCourseRequest describes a partial course update.
type UpdateCourseRequest struct {
	Code         *string `json:"code,omitempty"`
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Department   *string `json:"department,omitempty"`
	Credits      *int    `json:"credits,omitempty" validate:"omitempty,gte=0"`
	Schedule     *string `json:"schedule,omitempty"`
	MaxSeats     *int    `json:"max_seats,omitempty" validate:"omitempty,gte=0"`
	InstructorID *string `json:"instructor_id,omitempty"`
	TAID         *string `json:"ta_id,omitempty"`
	ClearTA      bool    `json:"clear_ta,omitempty"`
}

// CourseService orchestrates catalog workflows.
type CourseService struct {
	repo      courseRepository
	users     userReader
	guard     *AuthzGuard
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, users userReader, guard *AuthzGuard, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, guard: guard, cache: cache, validator: validate, logger: logger}
}

const catalogCachePrefix = "catalog:"

// Create registers a new catalog entry. Admins may create any course; an
// instructor may only create a course they will own themselves.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, req CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	switch {
	case actor.Role == models.RoleAdmin:
	case actor.Role == models.RoleInstructor && actor.ID == req.InstructorID:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create this course")
	}

	if err := s.checkRole(ctx, req.InstructorID, models.RoleInstructor, "instructor"); err != nil {
		return nil, err
	}
	if req.TAID != nil {
		if err := s.checkRole(ctx, *req.TAID, models.RoleTA, "ta"); err != nil {
			return nil, err
		}
	}

	course := &models.Course{
		Code:         strings.TrimSpace(req.Code),
		Name:         req.Name,
		Description:  req.Description,
		Department:   req.Department,
		Credits:      req.Credits,
		Schedule:     req.Schedule,
		MaxSeats:     req.MaxSeats,
		InstructorID: req.InstructorID,
		TAID:         req.TAID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidateCatalog(ctx)

	return s.detail(ctx, course.ID)
}

// Update applies a partial update; the seats adjustment happens inside the
// repository transaction.
func (s *CourseService) Update(ctx context.Context, actor models.Actor, id string, req UpdateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionEditCourse); err != nil {
		return nil, err
	}

	if req.InstructorID != nil {
		if err := s.checkRole(ctx, *req.InstructorID, models.RoleInstructor, "instructor"); err != nil {
			return nil, err
		}
	}
	if req.TAID != nil {
		if err := s.checkRole(ctx, *req.TAID, models.RoleTA, "ta"); err != nil {
			return nil, err
		}
	}

	upd := models.CourseUpdate{
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Department:   req.Department,
		Credits:      req.Credits,
		Schedule:     req.Schedule,
		MaxSeats:     req.MaxSeats,
		InstructorID: req.InstructorID,
		TAID:         req.TAID,
		ClearTA:      req.ClearTA,
	}
	if _, err := s.repo.Update(ctx, id, upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidateCatalog(ctx)

	return s.detail(ctx, id)
}

// Delete removes the course and everything it owns.
func (s *CourseService) Delete(ctx context.Context, actor models.Actor, id string) error {
	course, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionDeleteCourse); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// GetByID returns a course with identity names resolved.
func (s *CourseService) GetByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	return s.detail(ctx, id)
}

// GetByCode returns a course by its unique code.
func (s *CourseService) GetByCode(ctx context.Context, code string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return s.detail(ctx, course.ID)
}

// Search returns catalog entries matching the term; a blank term returns
// the whole catalog. Results are cached per normalised term.
func (s *CourseService) Search(ctx context.Context, term string) ([]models.CourseDetail, error) {
	key := catalogCachePrefix + "search:" + strings.ToLower(strings.TrimSpace(term))
	var cached []models.CourseDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	courses, err := s.repo.Search(ctx, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search courses")
	}
	if err := s.cache.Set(ctx, key, courses, 0); err != nil {
		s.logger.Warn("failed to cache catalog search", zap.Error(err))
	}
	return courses, nil
}

func (s *CourseService) load(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) detail(ctx context.Context, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course detail")
	}
	return detail, nil
}

func (s *CourseService) checkRole(ctx context.Context, userID string, role models.UserRole, label string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, label+" not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+label)
	}
	if user.Role != role {
		return appErrors.Clone(appErrors.ErrValidation, label+" does not have the required role")
	}
	return nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, catalogCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
