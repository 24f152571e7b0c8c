package models

import "time"

// Course represents a catalog entry with live seat bookkeeping.
// Invariant: 0 <= seats_left <= max_seats, and seats_left always equals
// max_seats minus the number of live enrollments for the course.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	Department   string    `db:"department" json:"department"`
	Credits      int       `db:"credits" json:"credits"`
	Schedule     string    `db:"schedule" json:"schedule"`
	MaxSeats     int       `db:"max_seats" json:"max_seats"`
	SeatsLeft    int       `db:"seats_left" json:"seats_left"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	TAID         *string   `db:"ta_id" json:"ta_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with resolved identity names.
type CourseDetail struct {
	Course
	InstructorName string  `db:"instructor_name" json:"instructor_name"`
	TAName         *string `db:"ta_name" json:"ta_name,omitempty"`
}

// CourseUpdate carries the mutable course fields for partial updates; nil
// pointers leave the stored value untouched. Changing MaxSeats shifts
// SeatsLeft by the same delta, clamped to [0, new MaxSeats], so currently
// enrolled students keep their seats.
type CourseUpdate struct {
	Code         *string
	Name         *string
	Description  *string
	Department   *string
	Credits      *int
	Schedule     *string
	MaxSeats     *int
	InstructorID *string
	TAID         *string
	ClearTA      bool
}

// CourseAction enumerates the course-scoped operations the authorization
// guard distinguishes. TAs of record may perform only the delegated subset.
type CourseAction string

const (
	ActionEditCourse       CourseAction = "edit_course"
	ActionDeleteCourse     CourseAction = "delete_course"
	ActionPostAnnouncement CourseAction = "post_announcement"
	ActionPostAssignment   CourseAction = "post_assignment"
	ActionGradeSubmission  CourseAction = "grade_submission"
	ActionViewRoster       CourseAction = "view_roster"
)
