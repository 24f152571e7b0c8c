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

// SubmissionRepository handles persistence of gradable attempts. The pair
// (assignment_id, student_id) is unique; resubmission updates in place.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert creates the submission row on first submit and updates text and
// submitted_at in place on resubmission. Resubmission resets grade,
// feedback and graded_at: a new attempt invalidates the previous mark.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, submission_text, grade, feedback, submitted_at, graded_at)
        VALUES (:id, :assignment_id, :student_id, :submission_text, NULL, NULL, :submitted_at, NULL)
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET submission_text = EXCLUDED.submission_text, submitted_at = EXCLUDED.submitted_at,
            grade = NULL, feedback = NULL, graded_at = NULL`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// Grade sets grade and feedback for the pair. Re-grading overwrites the
// previous values. Returns sql.ErrNoRows when no submission exists.
func (r *SubmissionRepository) Grade(ctx context.Context, assignmentID, studentID string, grade float64, feedback *string) error {
	const query = `UPDATE submissions SET grade = $3, feedback = $4, graded_at = $5
        WHERE assignment_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, assignmentID, studentID, grade, feedback, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grade rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByAssignmentAndStudent returns the submission for the pair.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, submission_text, grade, feedback, submitted_at, graded_at
        FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByAssignment joins every submission with the submitting student's
// identity, ungraded rows included, so graders can see pending work.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.submission_text, s.grade, s.feedback, s.submitted_at, s.graded_at,
        u.full_name AS student_name, u.email AS student_email
        FROM submissions s
        JOIN users u ON u.id = s.student_id
        WHERE s.assignment_id = $1
        ORDER BY s.submitted_at ASC`
	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}
