package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// EnrollmentRepository handles persistence of the student/course ledger.
// Enroll and Drop lock the course row so the seats_left counter can never
// drift from the live enrollment count.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll inserts the enrollment row and decrements seats_left as one
// transaction. The course row lock serialises concurrent enrolls against
// the same course: the loser of a last-seat race observes seats_left = 0
// and gets ErrNoSeats, never a negative counter.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seatsLeft int
	if err := tx.GetContext(ctx, &seatsLeft, `SELECT seats_left FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, err
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`, studentID, courseID)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}

	if seatsLeft <= 0 {
		return nil, ErrNoSeats
	}

	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	}
	const insertQuery = `INSERT INTO enrollments (id, student_id, course_id, enrolled_at)
        VALUES (:id, :student_id, :course_id, :enrolled_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE courses SET seats_left = seats_left - 1, updated_at = $2 WHERE id = $1`, courseID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("decrement seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll: %w", err)
	}
	return enrollment, nil
}

// Drop deletes the enrollment row and returns the seat, clamped at
// max_seats, in one transaction under the same course row lock as Enroll.
func (r *EnrollmentRepository) Drop(ctx context.Context, studentID, courseID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var courseExists int
	if err := tx.GetContext(ctx, &courseExists, `SELECT 1 FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}

	if _, err := tx.ExecContext(ctx, `UPDATE courses SET seats_left = LEAST(seats_left + 1, max_seats), updated_at = $2 WHERE id = $1`, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	return nil
}

// IsEnrolled reports whether a live enrollment row exists for the pair.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`, studentID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListRosterByCourse resolves enrollment rows to identity records.
func (r *EnrollmentRepository) ListRosterByCourse(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.student_id, u.full_name, u.email, e.enrolled_at
        FROM enrollments e
        JOIN users u ON u.id = e.student_id
        WHERE e.course_id = $1
        ORDER BY u.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// ListByStudent returns the enrollments of one student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, enrolled_at FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// CountByCourse returns the number of live enrollments for a course.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}
