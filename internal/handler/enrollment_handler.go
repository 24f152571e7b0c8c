package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/service"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

type enrollRequest struct {
	StudentID string `json:"student_id"`
}

// Enroll godoc
// @Summary Enroll a student into a course
// @Description Students enroll themselves; admins may pass a student_id.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body enrollRequest false "Optional subject student"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor := actorFromContext(c)

	var req enrollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	studentID := req.StudentID
	if studentID == "" {
		studentID = actor.ID
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor, studentID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop a student from a course
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /courses/{id}/enrollments/{studentId} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	if err := h.enrollments.Drop(c.Request.Context(), actorFromContext(c), c.Param("studentId"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary List students enrolled in a course
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/roster [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	roster, err := h.enrollments.ListEnrolledStudents(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// RosterCount godoc
// @Summary Count students enrolled in a course
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/roster/count [get]
func (h *EnrollmentHandler) RosterCount(c *gin.Context) {
	count, err := h.enrollments.CountEnrolled(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course_id": c.Param("id"), "enrolled": count}, nil)
}

// ExportRoster godoc
// @Summary Export the course roster as CSV or PDF
// @Tags Enrollments
// @Produce application/octet-stream
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /courses/{id}/roster/export [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	format := service.RosterFormat(c.DefaultQuery("format", "csv"))
	payload, filename, err := h.enrollments.ExportRoster(c.Request.Context(), actorFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == service.RosterFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}

// StudentEnrollments godoc
// @Summary List the courses a student is enrolled in
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) StudentEnrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
