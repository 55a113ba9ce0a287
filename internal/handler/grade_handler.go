package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/service"
	appErrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/response"
)

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades  *service.GradeService
	exports *service.ExportService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades *service.GradeService, exports *service.ExportService) *GradeHandler {
	return &GradeHandler{grades: grades, exports: exports}
}

// Upload godoc
// @Summary Upload a grade
// @Description Create the single grade for an enrollment
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.UploadGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UploadGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	grade, err := h.grades.Upload(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Update godoc
// @Summary Update a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [patch]
func (h *GradeHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	grade, err := h.grades.Update(c.Request.Context(), claims.UserID, c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete a grade
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Grade ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.grades.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMine godoc
// @Summary List my grades
// @Description List the authenticated student's grades with course context
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /grades/me [get]
func (h *GradeHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grades, err := h.grades.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// ListSection godoc
// @Summary List section grades
// @Description List all grades in a section for its owning faculty
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sections/{id}/grades [get]
func (h *GradeHandler) ListSection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.grades.ListForSection(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SectionStats godoc
// @Summary Section grade statistics
// @Tags Grades
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sections/{id}/grades/stats [get]
func (h *GradeHandler) SectionStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.grades.StatsForSection(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ExportSection godoc
// @Summary Export section grades
// @Description Download the section grade report as CSV or PDF
// @Tags Grades
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /sections/{id}/grades/export [get]
func (h *GradeHandler) ExportSection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	file, err := h.exports.SectionGradeReport(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
