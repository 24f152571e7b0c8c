package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// CourseRepository handles persistence of catalog entries.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, name, description, department, credits, schedule, max_seats, seats_left, instructor_id, ta_id, created_at, updated_at`

// Create persists a new course. SeatsLeft is initialised to MaxSeats.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	course.SeatsLeft = course.MaxSeats
	const query = `INSERT INTO courses (id, code, name, description, department, credits, schedule, max_seats, seats_left, instructor_id, ta_id, created_at, updated_at)
        VALUES (:id, :code, :name, :description, :department, :credits, :schedule, :max_seats, :seats_left, :instructor_id, :ta_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with instructor and TA names resolved.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.code, c.name, c.description, c.department, c.credits, c.schedule,
        c.max_seats, c.seats_left, c.instructor_id, c.ta_id, c.created_at, c.updated_at,
        i.full_name AS instructor_name, t.full_name AS ta_name
        FROM courses c
        JOIN users i ON i.id = c.instructor_id
        LEFT JOIN users t ON t.id = c.ta_id
        WHERE c.id = $1`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Update applies the partial update inside a transaction holding the course
// row lock, so a max_seats change cannot race a concurrent enroll/drop.
func (r *CourseRepository) Update(ctx context.Context, id string, upd models.CourseUpdate) (*models.Course, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 FOR UPDATE`, courseColumns)
	var course models.Course
	if err := tx.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}

	if upd.Code != nil {
		course.Code = *upd.Code
	}
	if upd.Name != nil {
		course.Name = *upd.Name
	}
	if upd.Description != nil {
		course.Description = *upd.Description
	}
	if upd.Department != nil {
		course.Department = *upd.Department
	}
	if upd.Credits != nil {
		course.Credits = *upd.Credits
	}
	if upd.Schedule != nil {
		course.Schedule = *upd.Schedule
	}
	if upd.InstructorID != nil {
		course.InstructorID = *upd.InstructorID
	}
	if upd.ClearTA {
		course.TAID = nil
	} else if upd.TAID != nil {
		course.TAID = upd.TAID
	}
	if upd.MaxSeats != nil {
		delta := *upd.MaxSeats - course.MaxSeats
		course.MaxSeats = *upd.MaxSeats
		course.SeatsLeft = clamp(course.SeatsLeft+delta, 0, course.MaxSeats)
	}
	course.UpdatedAt = time.Now().UTC()

	const updateQuery = `UPDATE courses SET code = :code, name = :name, description = :description,
        department = :department, credits = :credits, schedule = :schedule,
        max_seats = :max_seats, seats_left = :seats_left,
        instructor_id = :instructor_id, ta_id = :ta_id, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, updateQuery, &course); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("update course: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update course: %w", err)
	}
	return &course, nil
}

// Delete removes a course and everything it owns: enrollments, assignments
// with their submissions, and announcements, in one transaction.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE assignment_id IN (SELECT id FROM assignments WHERE course_id = $1)`, id); err != nil {
		return fmt.Errorf("delete course submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM announcements WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course announcements: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}

// Search returns courses matching a case-insensitive substring over code,
// name, description, department and the linked instructor/TA names. A blank
// term returns the full catalog. Ordering is by code for determinism.
func (r *CourseRepository) Search(ctx context.Context, term string) ([]models.CourseDetail, error) {
	base := `SELECT c.id, c.code, c.name, c.description, c.department, c.credits, c.schedule,
        c.max_seats, c.seats_left, c.instructor_id, c.ta_id, c.created_at, c.updated_at,
        i.full_name AS instructor_name, t.full_name AS ta_name
        FROM courses c
        JOIN users i ON i.id = c.instructor_id
        LEFT JOIN users t ON t.id = c.ta_id`

	term = strings.TrimSpace(term)
	var courses []models.CourseDetail
	if term == "" {
		query := base + " ORDER BY c.code ASC"
		if err := r.db.SelectContext(ctx, &courses, query); err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		return courses, nil
	}

	query := base + ` WHERE c.code ILIKE $1 OR c.name ILIKE $1 OR c.description ILIKE $1
        OR c.department ILIKE $1 OR i.full_name ILIKE $1 OR t.full_name ILIKE $1
        ORDER BY c.code ASC`
	if err := r.db.SelectContext(ctx, &courses, query, "%"+term+"%"); err != nil {
		return nil, fmt.Errorf("search courses: %w", err)
	}
	return courses, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
