package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-course-api/internal/models"
)

func TestSubmissionRepositoryUpsertResetsGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	// The upsert statement must null out grade, feedback and graded_at on
	// conflict so a resubmission invalidates the previous mark.
	mock.ExpectExec(`(?s)INSERT INTO submissions.*ON CONFLICT \(assignment_id, student_id\).*grade = NULL, feedback = NULL, graded_at = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	submission := &models.Submission{AssignmentID: "asg-1", StudentID: "stu-1", Text: "my answer"}
	require.NoError(t, repo.Upsert(context.Background(), submission))
	require.NotEmpty(t, submission.ID)
	require.False(t, submission.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	feedback := "well done"
	mock.ExpectExec(`(?s)UPDATE submissions SET grade = .*WHERE assignment_id = `).
		WithArgs("asg-1", "stu-1", 91.5, feedback, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Grade(context.Background(), "asg-1", "stu-1", 91.5, &feedback))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGradeNoSubmission(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(`(?s)UPDATE submissions SET grade = .*WHERE assignment_id = `).
		WithArgs("asg-1", "stu-1", 75.0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Grade(context.Background(), "asg-1", "stu-1", 75.0, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindByAssignmentAndStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	grade := 88.0
	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "submission_text", "grade", "feedback", "submitted_at", "graded_at"}).
		AddRow("sub-1", "asg-1", "stu-1", "work", grade, "ok", time.Now(), time.Now())
	mock.ExpectQuery(`(?s)SELECT id, assignment_id, student_id, submission_text, .*FROM submissions WHERE assignment_id = `).
		WithArgs("asg-1", "stu-1").
		WillReturnRows(rows)

	submission, err := repo.FindByAssignmentAndStudent(context.Background(), "asg-1", "stu-1")
	require.NoError(t, err)
	require.NotNil(t, submission.Grade)
	require.InDelta(t, 88.0, *submission.Grade, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListByAssignment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "submission_text", "grade", "feedback", "submitted_at", "graded_at", "student_name", "student_email"}).
		AddRow("sub-1", "asg-1", "stu-1", "work", nil, nil, time.Now(), nil, "Alice", "alice@example.com").
		AddRow("sub-2", "asg-1", "stu-2", "more work", 70.0, "fine", time.Now(), time.Now(), "Bob", "bob@example.com")
	mock.ExpectQuery(`(?s)SELECT s\.id, s\.assignment_id, .*JOIN users u ON u\.id = s\.student_id`).
		WithArgs("asg-1").
		WillReturnRows(rows)

	submissions, err := repo.ListByAssignment(context.Background(), "asg-1")
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	require.Nil(t, submissions[0].Grade)
	require.Equal(t, "Alice", submissions[0].StudentName)
	require.NotNil(t, submissions[1].Grade)
	require.NoError(t, mock.ExpectationsWereMet())
}
