package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// AnnouncementRepository handles persistence of course announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create persists a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO announcements (id, course_id, poster_id, title, body, created_at)
        VALUES (:id, :course_id, :poster_id, :title, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// ListByCourse returns course announcements, newest first.
func (r *AnnouncementRepository) ListByCourse(ctx context.Context, courseID string) ([]models.AnnouncementDetail, error) {
	const query = `SELECT a.id, a.course_id, a.poster_id, a.title, a.body, a.created_at,
        u.full_name AS poster_name
        FROM announcements a
        JOIN users u ON u.id = a.poster_id
        WHERE a.course_id = $1
        ORDER BY a.created_at DESC`
	var announcements []models.AnnouncementDetail
	if err := r.db.SelectContext(ctx, &announcements, query, courseID); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return announcements, nil
}
