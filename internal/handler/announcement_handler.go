package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/service"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// AnnouncementHandler exposes course announcement endpoints.
type AnnouncementHandler struct {
	announcements *service.AnnouncementService
}

// NewAnnouncementHandler constructs AnnouncementHandler.
func NewAnnouncementHandler(announcements *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// Post godoc
// @Summary Post an announcement to a course
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.PostAnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/announcements [post]
func (h *AnnouncementHandler) Post(c *gin.Context) {
	var req service.PostAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	announcement, err := h.announcements.Post(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// List godoc
// @Summary List announcements of a course
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	announcements, err := h.announcements.ListByCourse(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}
