package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/service"
	appErrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/response"
)

// CatalogHandler exposes course and section catalog endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCourses godoc
// @Summary List courses
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListSections godoc
// @Summary List open sections
// @Description List every open section with live enrolled counts
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *CatalogHandler) ListSections(c *gin.Context) {
	sections, err := h.catalog.ListOpenSections(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}

// GetSection godoc
// @Summary Get section detail
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *CatalogHandler) GetSection(c *gin.Context) {
	section, err := h.catalog.GetSection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// CreateSection godoc
// @Summary Create a section
// @Description Create a section owned by the calling faculty member
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sections [post]
func (h *CatalogHandler) CreateSection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}

	section, err := h.catalog.CreateSection(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// UpdateSection godoc
// @Summary Update a section
// @Description Partially update a section owned by the calling faculty member
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param payload body service.UpdateSectionRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id} [patch]
func (h *CatalogHandler) UpdateSection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	section, err := h.catalog.UpdateSection(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}
