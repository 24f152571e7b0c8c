package models

import "time"

// Announcement represents a persisted course announcement.
type Announcement struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	PosterID  string    `db:"poster_id" json:"poster_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnnouncementDetail enriches an announcement with the poster's name.
type AnnouncementDetail struct {
	Announcement
	PosterName string `db:"poster_name" json:"poster_name"`
}
