package models

import "time"

// Assignment is coursework owned by a course; deleted when the course is.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
