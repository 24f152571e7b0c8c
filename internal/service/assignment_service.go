package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
}

type submissionRepository interface {
	Upsert(ctx context.Context, submission *models.Submission) error
	Grade(ctx context.Context, assignmentID, studentID string, grade float64, feedback *string) error
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
}

// CreateAssignmentRequest describes assignment creation payload.
type CreateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

// SubmitRequest carries a student's attempt.
type SubmitRequest struct {
	Text string `json:"text" validate:"required"`
}

// GradeRequest carries a grade as entered by the grader. The value is kept
// as a string so that malformed input is rejected here, not at transport
// decoding.
type GradeRequest struct {
	Grade    string `json:"grade" validate:"required"`
	Feedback string `json:"feedback"`
}

// AssignmentService orchestrates coursework and the submission/grading
// state machine.
type AssignmentService struct {
	assignments assignmentRepository
	submissions submissionRepository
	courses     courseReader
	guard       *AuthzGuard
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(assignments assignmentRepository, submissions submissionRepository, courses courseReader, guard *AuthzGuard, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, submissions: submissions, courses: courses, guard: guard, validator: validate, logger: logger}
}

// CreateAssignment adds coursework to a course.
func (s *AssignmentService) CreateAssignment(ctx context.Context, actor models.Actor, courseID string, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionPostAssignment); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// ListAssignments returns the coursework of a course, visible to anyone who
// may view course content.
func (s *AssignmentService) ListAssignments(ctx context.Context, actor models.Actor, courseID string) ([]models.Assignment, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireView(ctx, actor, course); err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Submit records a student's attempt. First submit creates the row,
// resubmission updates it in place; a resubmission after grading clears the
// previous grade and feedback.
func (s *AssignmentService) Submit(ctx context.Context, actor models.Actor, assignmentID string, req SubmitRequest) (*models.Submission, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission text must not be empty")
	}

	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit")
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.guard.enrollments.IsEnrolled(ctx, actor.ID, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    actor.ID,
		Text:         req.Text,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}

	stored, err := s.submissions.FindByAssignmentAndStudent(ctx, assignmentID, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return stored, nil
}

// Grade records a mark for a student's submission. The raw value must parse
// as a number within [0, 100]. Re-grading overwrites the previous mark.
func (s *AssignmentService) Grade(ctx context.Context, actor models.Actor, assignmentID, studentID string, req GradeRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(req.Grade), 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade must be a number")
	}
	if value < 0 || value > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade must be between 0 and 100")
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	course, err := s.loadCourse(ctx, assignment.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionGradeSubmission); err != nil {
		return nil, err
	}

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}
	if err := s.submissions.Grade(ctx, assignmentID, studentID, value, feedback); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission from this student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	stored, err := s.submissions.FindByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	s.logger.Info("submission graded", zap.String("assignment_id", assignmentID), zap.String("student_id", studentID), zap.Float64("grade", value))
	return stored, nil
}

// ListSubmissions joins every submission for the assignment with the
// submitting student's identity. Ungraded rows are included so graders can
// see pending work.
func (s *AssignmentService) ListSubmissions(ctx context.Context, actor models.Actor, assignmentID string) ([]models.SubmissionDetail, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	course, err := s.loadCourse(ctx, assignment.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(actor, course, models.ActionGradeSubmission); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// GetStatus is the student-facing projection of a submission. A missing row
// yields Submitted=false, never an error.
func (s *AssignmentService) GetStatus(ctx context.Context, actor models.Actor, assignmentID, studentID string) (*models.SubmissionStatus, error) {
	if actor.ID != studentID && actor.Role != models.RoleAdmin {
		assignment, err := s.loadAssignment(ctx, assignmentID)
		if err != nil {
			return nil, err
		}
		course, err := s.loadCourse(ctx, assignment.CourseID)
		if err != nil {
			return nil, err
		}
		if err := s.guard.RequireManage(actor, course, models.ActionGradeSubmission); err != nil {
			return nil, err
		}
	}

	submission, err := s.submissions.FindByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SubmissionStatus{Submitted: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	submittedAt := submission.SubmittedAt
	return &models.SubmissionStatus{
		Submitted:   true,
		Grade:       submission.Grade,
		Feedback:    submission.Feedback,
		SubmittedAt: &submittedAt,
	}, nil
}

func (s *AssignmentService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *AssignmentService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
