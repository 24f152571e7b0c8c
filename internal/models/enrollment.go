package models

import "time"

// Enrollment captures a student's registration to a course. The existence of
// a row is the sole authority for "student is enrolled"; the pair
// (student_id, course_id) is unique.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// RosterEntry resolves an enrollment row to the student's identity record
// for roster and grading views.
type RosterEntry struct {
	StudentID  string    `db:"student_id" json:"student_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}
