package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

const openSectionsCacheKey = "catalog:open_sections"

// CatalogStore is the persistence surface of the course catalog.
type CatalogStore interface {
	ListOpenSections(ctx context.Context) ([]models.SectionWithCount, error)
	FindSectionByID(ctx context.Context, id string) (*models.Section, error)
	FindSectionDetail(ctx context.Context, id string) (*models.SectionDetail, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	CreateSection(ctx context.Context, course *models.Course, section *models.Section) error
	UpdateSection(ctx context.Context, id string, update repository.SectionUpdate) error
}

// SeatCounter reports the live enrolled count for a section.
type SeatCounter interface {
	CountEnrolled(ctx context.Context, sectionID string) (int, error)
}

// CatalogConfig tunes the open-sections cache.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// CatalogService serves the read-mostly course and section catalog. The open
// sections listing is cached in Redis; seat counts on single-section reads
// are always live.
type CatalogService struct {
	catalog  CatalogStore
	seats    SeatCounter
	cache    *redis.Client
	cfg      CatalogConfig
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCatalogService constructs the catalog service. cache may be nil when
// Redis is not configured; the service then reads straight through. metrics
// may be nil in tests.
func NewCatalogService(catalog CatalogStore, seats SeatCounter, cache *redis.Client, cfg CatalogConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, seats: seats, cache: cache, cfg: cfg, metrics: metrics, validate: validate, logger: logger}
}

// CreateSectionRequest creates a section, registering its course if new.
type CreateSectionRequest struct {
	CourseCode        string `json:"course_code" validate:"required,max=20"`
	CourseName        string `json:"course_name" validate:"required,max=200"`
	CourseDescription string `json:"course_description" validate:"max=1000"`
	Name              string `json:"name" validate:"required,max=100"`
	Capacity          int    `json:"capacity" validate:"required,gt=0"`
	Semester          string `json:"semester" validate:"required,oneof=SPRING SUMMER FALL WINTER"`
	Year              int    `json:"year" validate:"required,gte=2000,lte=2100"`
}

// UpdateSectionRequest partially updates a section. Capacity may shrink below
// the current enrolled count; existing enrollments are never evicted and only
// future admissions are blocked.
type UpdateSectionRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Capacity *int    `json:"capacity" validate:"omitempty,gt=0"`
	IsOpen   *bool   `json:"is_open"`
}

// ListOpenSections returns every open section with live counts, served from
// cache when fresh.
func (s *CatalogService) ListOpenSections(ctx context.Context) ([]models.SectionWithCount, error) {
	if s.cacheActive() {
		if cached, err := s.cache.Get(ctx, openSectionsCacheKey).Bytes(); err == nil {
			var sections []models.SectionWithCount
			if err := json.Unmarshal(cached, &sections); err == nil {
				s.observeCache("hit")
				return sections, nil
			}
		}
		s.observeCache("miss")
	}

	sections, err := s.catalog.ListOpenSections(ctx)
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	if s.cacheActive() {
		if payload, err := json.Marshal(sections); err == nil {
			if err := s.cache.Set(ctx, openSectionsCacheKey, payload, s.cfg.CacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache open sections", zap.Error(err))
			}
		}
	}
	return sections, nil
}

// GetSection returns a single section with its live enrolled count.
func (s *CatalogService) GetSection(ctx context.Context, id string) (*models.SectionWithCount, error) {
	detail, err := s.catalog.FindSectionDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "section not found")
		}
		return nil, apperrors.FromError(err)
	}
	count, err := s.seats.CountEnrolled(ctx, id)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return &models.SectionWithCount{SectionDetail: *detail, EnrolledCount: count}, nil
}

// ListCourses returns the course catalog.
func (s *CatalogService) ListCourses(ctx context.Context) ([]models.Course, error) {
	courses, err := s.catalog.ListCourses(ctx)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return courses, nil
}

// CreateSection registers a section owned by the calling faculty member.
func (s *CatalogService) CreateSection(ctx context.Context, facultyID string, req *CreateSectionRequest) (*models.Section, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	course := &models.Course{
		Code:        req.CourseCode,
		Name:        req.CourseName,
		Description: req.CourseDescription,
	}
	section := &models.Section{
		FacultyID: facultyID,
		Name:      req.Name,
		Capacity:  req.Capacity,
		Semester:  req.Semester,
		Year:      req.Year,
		IsOpen:    true,
	}
	if err := s.catalog.CreateSection(ctx, course, section); err != nil {
		s.logger.Error("create section failed", zap.String("course_code", req.CourseCode), zap.Error(err))
		return nil, apperrors.FromError(err)
	}

	s.invalidateOpenSections(ctx)
	s.logger.Info("section created",
		zap.String("section_id", section.ID),
		zap.String("course_code", course.Code),
	)
	return section, nil
}

// UpdateSection applies a partial update. Only the owning faculty member or
// an admin may modify a section.
func (s *CatalogService) UpdateSection(ctx context.Context, callerID string, role models.UserRole, sectionID string, req *UpdateSectionRequest) (*models.Section, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	section, err := s.catalog.FindSectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "section not found")
		}
		return nil, apperrors.FromError(err)
	}
	if role != models.RoleAdmin && section.FacultyID != callerID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the section faculty may modify this section")
	}

	update := repository.SectionUpdate{
		Name:     req.Name,
		Capacity: req.Capacity,
		IsOpen:   req.IsOpen,
	}
	if err := s.catalog.UpdateSection(ctx, sectionID, update); err != nil {
		return nil, apperrors.FromError(err)
	}

	s.invalidateOpenSections(ctx)

	updated, err := s.catalog.FindSectionByID(ctx, sectionID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return updated, nil
}

func (s *CatalogService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ObserveCatalogCache(result)
	}
}

func (s *CatalogService) cacheActive() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

func (s *CatalogService) invalidateOpenSections(ctx context.Context) {
	if !s.cacheActive() {
		return
	}
	if err := s.cache.Del(ctx, openSectionsCacheKey).Err(); err != nil {
		s.logger.Warn("failed to invalidate open sections cache", zap.Error(err))
	}
}
