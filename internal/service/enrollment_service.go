package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

// EnrollmentStore is the persistence surface of the enrollment ledger.
type EnrollmentStore interface {
	Admit(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Drop(ctx context.Context, id string) error
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// AdmissionConfig bounds retries on transient transaction conflicts.
type AdmissionConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// EnrollmentService is the admission controller. All capacity and uniqueness
// decisions happen in the store transaction; the service maps outcomes onto
// the API error taxonomy and retries transient conflicts a bounded number of
// times.
type EnrollmentService struct {
	enrollments EnrollmentStore
	cfg         AdmissionConfig
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the enrollment service. metrics may be nil
// in tests.
func NewEnrollmentService(enrollments EnrollmentStore, cfg AdmissionConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &EnrollmentService{enrollments: enrollments, cfg: cfg, metrics: metrics, validate: validate, logger: logger}
}

// EnrollRequest asks to admit the authenticated student into a section.
type EnrollRequest struct {
	SectionID string `json:"section_id" validate:"required,uuid"`
}

// Enroll admits a student into a section, or explains why not.
//
// Outcomes: not found when the section does not exist, precondition failed
// when it is closed, conflict when the student already holds an active
// enrollment for the course, section full when capacity is reached.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID string, req *EnrollRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	var (
		enrollment *models.Enrollment
		err        error
	)
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		enrollment, err = s.enrollments.Admit(ctx, studentID, req.SectionID)
		if err == nil || !repository.IsRetryableConflict(err) {
			break
		}
		s.logger.Warn("admission conflict, retrying",
			zap.String("section_id", req.SectionID),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, apperrors.FromError(ctx.Err())
		case <-time.After(s.cfg.RetryBackoff):
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperrors.Clone(apperrors.ErrNotFound, "section not found")
		case errors.Is(err, repository.ErrSectionClosed):
			s.observeAdmission("section_closed")
			return nil, apperrors.Clone(apperrors.ErrPreconditionFailed, "section is closed for enrollment")
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			s.observeAdmission("conflict")
			return nil, apperrors.Clone(apperrors.ErrConflict, "already enrolled in this course")
		case errors.Is(err, repository.ErrSectionFull):
			s.observeAdmission("section_full")
			return nil, apperrors.ErrSectionFull
		default:
			s.observeAdmission("error")
			s.logger.Error("admission failed", zap.String("section_id", req.SectionID), zap.Error(err))
			return nil, apperrors.FromError(err)
		}
	}

	s.observeAdmission("admitted")
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("section_id", enrollment.SectionID),
	)
	return enrollment, nil
}

// Drop releases the student's seat. Dropping an already-dropped enrollment
// is a no-op success so retried requests converge.
func (s *EnrollmentService) Drop(ctx context.Context, studentID, enrollmentID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "enrollment not found")
		}
		return apperrors.FromError(err)
	}
	if enrollment.StudentID != studentID {
		return apperrors.ErrForbidden
	}
	if enrollment.Status == models.EnrollmentStatusDropped {
		return nil
	}
	if err := s.enrollments.Drop(ctx, enrollmentID); err != nil {
		return apperrors.FromError(err)
	}
	s.logger.Info("enrollment dropped",
		zap.String("enrollment_id", enrollmentID),
		zap.String("section_id", enrollment.SectionID),
	)
	return nil
}

func (s *EnrollmentService) observeAdmission(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAdmission(outcome)
	}
}

// List returns the student's active enrollments, most recent first.
func (s *EnrollmentService) List(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return enrollments, nil
}
