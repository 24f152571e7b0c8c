package service

import (
	"context"

	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

// taDelegatedActions are the course actions a TA of record may perform in
// addition to the owning instructor. Roster viewing is included because
// grading requires it.
var taDelegatedActions = map[models.CourseAction]struct{}{
	models.ActionPostAnnouncement: {},
	models.ActionPostAssignment:   {},
	models.ActionGradeSubmission:  {},
	models.ActionViewRoster:       {},
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// AuthzGuard decides whether an actor may perform a course-scoped action.
// It is a pure decision component: it never mutates anything, and every
// decision combines the actor's role with an ownership relationship to the
// specific course.
type AuthzGuard struct {
	enrollments enrollmentChecker
}

// NewAuthzGuard constructs the guard.
func NewAuthzGuard(enrollments enrollmentChecker) *AuthzGuard {
	return &AuthzGuard{enrollments: enrollments}
}

// CanManageCourse reports whether the actor may perform the given action on
// the course. Admins always may; the owning instructor may; the TA of
// record may perform only the delegated subset.
func (g *AuthzGuard) CanManageCourse(actor models.Actor, course *models.Course, action models.CourseAction) bool {
	if course == nil {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	if actor.ID == course.InstructorID {
		return true
	}
	if _, delegated := taDelegatedActions[action]; delegated {
		if course.TAID != nil && actor.ID == *course.TAID {
			return true
		}
	}
	return false
}

// CanViewCourseContent reports whether the actor may see enrolled-only
// content: anyone who can manage the course, or an enrolled student.
func (g *AuthzGuard) CanViewCourseContent(ctx context.Context, actor models.Actor, course *models.Course) (bool, error) {
	if g.CanManageCourse(actor, course, models.ActionGradeSubmission) {
		return true, nil
	}
	return g.enrollments.IsEnrolled(ctx, actor.ID, course.ID)
}

// RequireManage converts a denied manage decision into the error every
// mutating operation returns. Denials are always explicit, never a no-op.
func (g *AuthzGuard) RequireManage(actor models.Actor, course *models.Course, action models.CourseAction) error {
	if !g.CanManageCourse(actor, course, action) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to "+string(action)+" for this course")
	}
	return nil
}

// RequireView converts a denied content-view decision into an error.
func (g *AuthzGuard) RequireView(ctx context.Context, actor models.Actor, course *models.Course) error {
	allowed, err := g.CanViewCourseContent(ctx, actor, course)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
	}
	return nil
}
