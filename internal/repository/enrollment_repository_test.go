package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT seats_left FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats_left"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-1", "course-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET seats_left = seats_left - 1, updated_at = $2 WHERE id = $1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "stu-1", enrollment.StudentID)
	require.Equal(t, "course-1", enrollment.CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollNoSeats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT seats_left FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats_left"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-1", "course-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.ErrorIs(t, err, ErrNoSeats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollAlreadyEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT seats_left FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats_left"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDrop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET seats_left = LEAST(seats_left + 1, max_seats), updated_at = $2 WHERE id = $1")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Drop(context.Background(), "stu-1", "course-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropNotEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "course-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Drop(context.Background(), "stu-1", "course-1")
	require.ErrorIs(t, err, ErrNotEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryIsEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	enrolled, err := repo.IsEnrolled(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, enrolled)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-2", "course-1").
		WillReturnError(sql.ErrNoRows)

	enrolled, err = repo.IsEnrolled(context.Background(), "stu-2", "course-1")
	require.NoError(t, err)
	require.False(t, enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "full_name", "email", "enrolled_at"}).
		AddRow("stu-1", "Alice", "alice@example.com", time.Now()).
		AddRow("stu-2", "Bob", "bob@example.com", time.Now())
	mock.ExpectQuery("SELECT e.student_id, u.full_name, u.email, e.enrolled_at").
		WithArgs("course-1").
		WillReturnRows(rows)

	roster, err := repo.ListRosterByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "Alice", roster[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}
