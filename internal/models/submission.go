package models

import "time"

// Submission is a student's gradable attempt at an assignment. At most one
// row exists per (assignment_id, student_id); resubmission updates in place.
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Text         string     `db:"submission_text" json:"text"`
	Grade        *float64   `db:"grade" json:"grade,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// SubmissionDetail joins a submission with the submitting student's identity
// so graders can see whose work is pending.
type SubmissionDetail struct {
	Submission
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// SubmissionStatus is the student-facing projection of a submission. A
// missing row yields Submitted=false with nil grade and feedback, never an
// error.
type SubmissionStatus struct {
	Submitted   bool       `json:"submitted"`
	Grade       *float64   `json:"grade"`
	Feedback    *string    `json:"feedback"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
