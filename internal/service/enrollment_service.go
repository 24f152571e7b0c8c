package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/repository"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/export"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Drop(ctx context.Context, studentID, courseID string) error
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	ListRosterByCourse(ctx context.Context, courseID string) ([]models.RosterEntry, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RosterFormat selects the rendering for roster exports.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

// EnrollmentService orchestrates the enrollment ledger.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	users     userReader
	guard     *AuthzGuard
	cache     *CacheService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, users userReader, guard *AuthzGuard, cache *CacheService, csv *export.CSVExporter, pdf *export.PDFExporter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, users: users, guard: guard, cache: cache, csv: csv, pdf: pdf, validator: validate, logger: logger}
}

// Enroll registers a student into a course, consuming one seat. Students
// may only enroll themselves; admins may enroll on a student's behalf.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, studentID, courseID string) (*models.Enrollment, error) {
	if err := s.requireSubjectStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := s.checkStudent(ctx, studentID); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.Enroll(ctx, studentID, courseID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
		case errors.Is(err, repository.ErrNoSeats):
			return nil, appErrors.Clone(appErrors.ErrNoSeats, "no seats available for course")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
		}
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("student enrolled", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return enrollment, nil
}

// Drop releases the student's seat.
func (s *EnrollmentService) Drop(ctx context.Context, actor models.Actor, studentID, courseID string) error {
	if err := s.requireSubjectStudent(actor, studentID); err != nil {
		return err
	}

	if err := s.repo.Drop(ctx, studentID, courseID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrNotEnrolled):
			return appErrors.Clone(appErrors.ErrNotFound, "student not enrolled in course")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
		}
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("student dropped", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return nil
}

// IsEnrolled is the authorization primitive for student-side reads.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	enrolled, err := s.repo.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return enrolled, nil
}

// ListEnrolledStudents resolves the course roster for grading views.
func (s *EnrollmentService) ListEnrolledStudents(ctx context.Context, actor models.Actor, courseID string) ([]models.RosterEntry, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionViewRoster); err != nil {
		return nil, err
	}

	roster, err := s.repo.ListRosterByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return roster, nil
}

// CountEnrolled returns the number of live enrollments for a course.
func (s *EnrollmentService) CountEnrolled(ctx context.Context, actor models.Actor, courseID string) (int, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionViewRoster); err != nil {
		return 0, err
	}

	count, err := s.repo.CountByCourse(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// ListStudentEnrollments returns the courses a student is enrolled in.
// Students see only their own; admins may inspect any student.
func (s *EnrollmentService) ListStudentEnrollments(ctx context.Context, actor models.Actor, studentID string) ([]models.Enrollment, error) {
	if err := s.requireSubjectStudent(actor, studentID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ExportRoster renders the course roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, actor models.Actor, courseID string, format RosterFormat) ([]byte, string, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, "", err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionViewRoster); err != nil {
		return nil, "", err
	}

	roster, err := s.repo.ListRosterByCourse(ctx, courseID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}

	data := export.Dataset{
		Headers: []string{"Student", "Email", "Enrolled At"},
		Rows:    make([][]string, 0, len(roster)),
	}
	for _, entry := range roster {
		data.Rows = append(data.Rows, []string{entry.FullName, entry.Email, entry.EnrolledAt.Format(time.RFC3339)})
	}

	var payload []byte
	var filename string
	switch format {
	case RosterFormatPDF:
		payload, err = s.pdf.Render(data, "Roster "+course.Code)
		filename = fmt.Sprintf("roster-%s.pdf", course.Code)
	case RosterFormatCSV, "":
		payload, err = s.csv.Render(data)
		filename = fmt.Sprintf("roster-%s.csv", course.Code)
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported roster format")
	}
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return payload, filename, nil
}

func (s *EnrollmentService) requireSubjectStudent(actor models.Actor, studentID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleStudent && actor.ID == studentID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the student themselves or an admin may do this")
}

func (s *EnrollmentService) checkStudent(ctx context.Context, studentID string) error {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if !student.Active {
		return appErrors.Clone(appErrors.ErrInactiveAccount, "student account is inactive")
	}
	return nil
}

func (s *EnrollmentService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) invalidateCatalog(ctx context.Context) {
	// seats_left is embedded in cached catalog entries.
	if err := s.cache.Invalidate(ctx, catalogCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
