package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/service"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// AssignmentHandler exposes coursework endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs AssignmentHandler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// Create godoc
// @Summary Create an assignment in a course
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.assignments.CreateAssignment(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// List godoc
// @Summary List assignments of a course
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	assignments, err := h.assignments.ListAssignments(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Submit godoc
// @Summary Submit work for an assignment
// @Description Resubmitting replaces the previous attempt and clears any grade.
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Param payload body service.SubmitRequest true "Submission payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *AssignmentHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.assignments.Submit(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Grade godoc
// @Summary Grade a student's submission
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions/{studentId}/grade [put]
func (h *AssignmentHandler) Grade(c *gin.Context) {
	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.assignments.Grade(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ListSubmissions godoc
// @Summary List all submissions for an assignment
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *AssignmentHandler) ListSubmissions(c *gin.Context) {
	submissions, err := h.assignments.ListSubmissions(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Status godoc
// @Summary Submission status for a student
// @Description Defaults to the caller; staff may pass student_id.
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Assignment ID"
// @Param student_id query string false "Subject student"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/status [get]
func (h *AssignmentHandler) Status(c *gin.Context) {
	actor := actorFromContext(c)
	studentID := c.Query("student_id")
	if studentID == "" {
		studentID = actor.ID
	}
	status, err := h.assignments.GetStatus(c.Request.Context(), actor, c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
