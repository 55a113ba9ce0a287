package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/service"
	appErrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs handler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll in a section
// @Description Admit the authenticated student into a section
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "enrolled successfully", enrollment)
}

// Drop godoc
// @Summary Drop an enrollment
// @Description Release the seat held by the authenticated student
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.enrollments.Drop(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "enrollment dropped", nil)
}

// List godoc
// @Summary List my enrollments
// @Description List the authenticated student's active enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.enrollments.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
