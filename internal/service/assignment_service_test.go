package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments map[string]*models.Assignment
	created     *models.Assignment
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = "asg-new"
	}
	if m.assignments == nil {
		m.assignments = make(map[string]*models.Assignment)
	}
	m.assignments[assignment.ID] = assignment
	m.created = assignment
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var list []models.Assignment
	for _, a := range m.assignments {
		if a.CourseID == courseID {
			list = append(list, *a)
		}
	}
	return list, nil
}

type mockSubmissionRepo struct {
	submissions map[string]*models.Submission
}

func subKey(assignmentID, studentID string) string { return assignmentID + ":" + studentID }

func (m *mockSubmissionRepo) Upsert(ctx context.Context, submission *models.Submission) error {
	if m.submissions == nil {
		m.submissions = make(map[string]*models.Submission)
	}
	k := subKey(submission.AssignmentID, submission.StudentID)
	if existing, ok := m.submissions[k]; ok {
		existing.Text = submission.Text
		existing.SubmittedAt = submission.SubmittedAt
		existing.Grade = nil
		existing.Feedback = nil
		existing.GradedAt = nil
		return nil
	}
	stored := *submission
	stored.ID = "sub-" + k
	m.submissions[k] = &stored
	return nil
}

func (m *mockSubmissionRepo) Grade(ctx context.Context, assignmentID, studentID string, grade float64, feedback *string) error {
	sub, ok := m.submissions[subKey(assignmentID, studentID)]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	sub.Grade = &grade
	sub.Feedback = feedback
	sub.GradedAt = &now
	return nil
}

func (m *mockSubmissionRepo) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	if sub, ok := m.submissions[subKey(assignmentID, studentID)]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	var list []models.SubmissionDetail
	for _, sub := range m.submissions {
		if sub.AssignmentID == assignmentID {
			list = append(list, models.SubmissionDetail{Submission: *sub})
		}
	}
	return list, nil
}

func newAssignmentFixture() (*AssignmentService, *mockAssignmentRepo, *mockSubmissionRepo, *mockEnrollmentRepo) {
	ta := "ta-1"
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Code: "CS101", InstructorID: "inst-1", TAID: &ta},
	}}
	enrollments := &mockEnrollmentRepo{
		enrolled:  map[string]bool{"stu-1:course-1": true},
		seatsLeft: map[string]int{"course-1": 10},
	}
	assignments := &mockAssignmentRepo{assignments: map[string]*models.Assignment{
		"asg-1": {ID: "asg-1", CourseID: "course-1", Title: "Problem Set 1", DueDate: time.Now().Add(48 * time.Hour)},
	}}
	submissions := &mockSubmissionRepo{}
	guard := NewAuthzGuard(enrollments)
	svc := NewAssignmentService(assignments, submissions, courses, guard, nil, zap.NewNop())
	return svc, assignments, submissions, enrollments
}

func TestAssignmentServiceCreateByInstructor(t *testing.T) {
	svc, repo, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "inst-1", Role: models.RoleInstructor}

	assignment, err := svc.CreateAssignment(context.Background(), actor, "course-1", CreateAssignmentRequest{
		Title:   "Problem Set 2",
		DueDate: time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "course-1", assignment.CourseID)
	assert.NotNil(t, repo.created)
}

func TestAssignmentServiceCreateByTA(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "ta-1", Role: models.RoleTA}

	_, err := svc.CreateAssignment(context.Background(), actor, "course-1", CreateAssignmentRequest{
		Title:   "Quiz",
		DueDate: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
}

func TestAssignmentServiceCreateByStudentForbidden(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.CreateAssignment(context.Background(), actor, "course-1", CreateAssignmentRequest{
		Title:   "Nope",
		DueDate: time.Now(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceSubmit(t *testing.T) {
	svc, _, subs, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	submission, err := svc.Submit(context.Background(), actor, "asg-1", SubmitRequest{Text: "my answer"})
	require.NoError(t, err)
	assert.Equal(t, "my answer", submission.Text)
	assert.Nil(t, submission.Grade)
	require.Len(t, subs.submissions, 1)
}

func TestAssignmentServiceSubmitBlankText(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), actor, "asg-1", SubmitRequest{Text: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAssignmentServiceSubmitNotEnrolled(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-2", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), actor, "asg-1", SubmitRequest{Text: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceResubmitClearsGrade(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	grader := models.Actor{ID: "inst-1", Role: models.RoleInstructor}

	_, err := svc.Submit(context.Background(), student, "asg-1", SubmitRequest{Text: "first attempt"})
	require.NoError(t, err)

	graded, err := svc.Grade(context.Background(), grader, "asg-1", "stu-1", GradeRequest{Grade: "85.5", Feedback: "good"})
	require.NoError(t, err)
	require.NotNil(t, graded.Grade)
	assert.InDelta(t, 85.5, *graded.Grade, 0.001)

	resubmitted, err := svc.Submit(context.Background(), student, "asg-1", SubmitRequest{Text: "second attempt"})
	require.NoError(t, err)
	assert.Equal(t, "second attempt", resubmitted.Text)
	assert.Nil(t, resubmitted.Grade)
	assert.Nil(t, resubmitted.Feedback)
	assert.Nil(t, resubmitted.GradedAt)
}

func TestAssignmentServiceGradeValidation(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	grader := models.Actor{ID: "inst-1", Role: models.RoleInstructor}

	_, err := svc.Submit(context.Background(), student, "asg-1", SubmitRequest{Text: "work"})
	require.NoError(t, err)

	for _, bad := range []string{"150", "-1", "abc", "100.01"} {
		_, err := svc.Grade(context.Background(), grader, "asg-1", "stu-1", GradeRequest{Grade: bad})
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), bad)
	}

	for _, good := range []string{"0", "100", "72.25"} {
		_, err := svc.Grade(context.Background(), grader, "asg-1", "stu-1", GradeRequest{Grade: good})
		require.NoError(t, err, good)
	}
}

func TestAssignmentServiceGradeNoSubmission(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	grader := models.Actor{ID: "inst-1", Role: models.RoleInstructor}

	_, err := svc.Grade(context.Background(), grader, "asg-1", "stu-1", GradeRequest{Grade: "90"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAssignmentServiceGradeByTA(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	ta := models.Actor{ID: "ta-1", Role: models.RoleTA}

	_, err := svc.Submit(context.Background(), student, "asg-1", SubmitRequest{Text: "work"})
	require.NoError(t, err)

	graded, err := svc.Grade(context.Background(), ta, "asg-1", "stu-1", GradeRequest{Grade: "60"})
	require.NoError(t, err)
	require.NotNil(t, graded.Grade)
	assert.InDelta(t, 60, *graded.Grade, 0.001)
}

func TestAssignmentServiceStatusNoSubmission(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-1", Role: models.RoleStudent}

	status, err := svc.GetStatus(context.Background(), actor, "asg-1", "stu-1")
	require.NoError(t, err)
	assert.False(t, status.Submitted)
	assert.Nil(t, status.Grade)
}

func TestAssignmentServiceStatusAfterGrading(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	grader := models.Actor{ID: "inst-1", Role: models.RoleInstructor}

	_, err := svc.Submit(context.Background(), student, "asg-1", SubmitRequest{Text: "work"})
	require.NoError(t, err)
	_, err = svc.Grade(context.Background(), grader, "asg-1", "stu-1", GradeRequest{Grade: "88", Feedback: "solid"})
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), student, "asg-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, status.Submitted)
	require.NotNil(t, status.Grade)
	assert.InDelta(t, 88, *status.Grade, 0.001)
	require.NotNil(t, status.Feedback)
	assert.Equal(t, "solid", *status.Feedback)
}

func TestAssignmentServiceStatusOfOtherStudentForbidden(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()
	actor := models.Actor{ID: "stu-2", Role: models.RoleStudent}

	_, err := svc.GetStatus(context.Background(), actor, "asg-1", "stu-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceListForEnrolledStudent(t *testing.T) {
	svc, _, _, _ := newAssignmentFixture()

	list, err := svc.ListAssignments(context.Background(), models.Actor{ID: "stu-1", Role: models.RoleStudent}, "course-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.ListAssignments(context.Background(), models.Actor{ID: "stu-2", Role: models.RoleStudent}, "course-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
