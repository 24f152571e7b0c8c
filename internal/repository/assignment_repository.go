package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// AssignmentRepository handles persistence of coursework.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments (id, course_id, title, description, due_date, created_at)
        VALUES (:id, :course_id, :title, :description, :due_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, course_id, title, description, due_date, created_at FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByCourse returns the assignments of a course ordered by due date.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	const query = `SELECT id, course_id, title, description, due_date, created_at FROM assignments WHERE course_id = $1 ORDER BY due_date ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}
