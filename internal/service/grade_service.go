package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

// GradeStore is the persistence surface of the grade ledger.
type GradeStore interface {
	Create(ctx context.Context, grade *models.Grade) error
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Update(ctx context.Context, id string, update repository.GradeUpdate) error
	Delete(ctx context.Context, id string) error
	SectionFacultyByEnrollment(ctx context.Context, enrollmentID string) (string, error)
	SectionFacultyByGrade(ctx context.Context, gradeID string) (string, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.SectionGradeRow, error)
	SectionStats(ctx context.Context, sectionID string) (*models.SectionGradeStats, error)
}

// EnrollmentFinder resolves enrollments for grading checks.
type EnrollmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// SectionFinder resolves sections for ownership checks on section views.
type SectionFinder interface {
	FindSectionByID(ctx context.Context, id string) (*models.Section, error)
}

// GradeService manages the one-grade-per-enrollment ledger. Only the faculty
// member owning the section may write grades; admins may read section views.
type GradeService struct {
	grades      GradeStore
	enrollments EnrollmentFinder
	sections    SectionFinder
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(grades GradeStore, enrollments EnrollmentFinder, sections SectionFinder, validate *validator.Validate, logger *zap.Logger) *GradeService {
	return &GradeService{grades: grades, enrollments: enrollments, sections: sections, validate: validate, logger: logger}
}

// UploadGradeRequest creates a grade for an enrollment.
type UploadGradeRequest struct {
	EnrollmentID string   `json:"enrollment_id" validate:"required,uuid"`
	Grade        string   `json:"grade" validate:"required,oneof=A A- B+ B B- C+ C C- D F I W"`
	Percentage   *float64 `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Remarks      *string  `json:"remarks" validate:"omitempty,max=500"`
}

// UpdateGradeRequest partially updates an existing grade.
type UpdateGradeRequest struct {
	Grade      *string  `json:"grade" validate:"omitempty,oneof=A A- B+ B B- C+ C C- D F I W"`
	Percentage *float64 `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Remarks    *string  `json:"remarks" validate:"omitempty,max=500"`
}

// Upload creates the grade for an enrollment. Concurrent uploads for the same
// enrollment collapse onto the unique constraint; the loser gets a conflict.
func (s *GradeService) Upload(ctx context.Context, facultyID string, req *UploadGradeRequest) (*models.Grade, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "enrollment not found")
		}
		return nil, apperrors.FromError(err)
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, apperrors.Clone(apperrors.ErrPreconditionFailed, "enrollment is not active")
	}

	owner, err := s.grades.SectionFacultyByEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if owner != facultyID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the section faculty may upload grades")
	}

	now := time.Now().UTC()
	grade := &models.Grade{
		ID:           uuid.NewString(),
		EnrollmentID: req.EnrollmentID,
		Grade:        req.Grade,
		Percentage:   req.Percentage,
		Remarks:      req.Remarks,
		UploadedBy:   facultyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		if errors.Is(err, repository.ErrDuplicateGrade) {
			return nil, apperrors.Clone(apperrors.ErrConflict, "enrollment already graded")
		}
		s.logger.Error("grade upload failed", zap.String("enrollment_id", req.EnrollmentID), zap.Error(err))
		return nil, apperrors.FromError(err)
	}

	s.logger.Info("grade uploaded",
		zap.String("grade_id", grade.ID),
		zap.String("enrollment_id", grade.EnrollmentID),
	)
	return grade, nil
}

// Update partially updates a grade owned by the calling faculty.
func (s *GradeService) Update(ctx context.Context, facultyID, gradeID string, req *UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, err.Error())
	}

	if _, err := s.grades.FindByID(ctx, gradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "grade not found")
		}
		return nil, apperrors.FromError(err)
	}

	owner, err := s.grades.SectionFacultyByGrade(ctx, gradeID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	if owner != facultyID {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "only the section faculty may update grades")
	}

	update := repository.GradeUpdate{
		Grade:      req.Grade,
		Percentage: req.Percentage,
		Remarks:    req.Remarks,
	}
	if err := s.grades.Update(ctx, gradeID, update); err != nil {
		return nil, apperrors.FromError(err)
	}

	grade, err := s.grades.FindByID(ctx, gradeID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return grade, nil
}

// Delete removes a grade owned by the calling faculty.
func (s *GradeService) Delete(ctx context.Context, facultyID, gradeID string) error {
	if _, err := s.grades.FindByID(ctx, gradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "grade not found")
		}
		return apperrors.FromError(err)
	}

	owner, err := s.grades.SectionFacultyByGrade(ctx, gradeID)
	if err != nil {
		return apperrors.FromError(err)
	}
	if owner != facultyID {
		return apperrors.Clone(apperrors.ErrForbidden, "only the section faculty may delete grades")
	}

	if err := s.grades.Delete(ctx, gradeID); err != nil {
		return apperrors.FromError(err)
	}
	s.logger.Info("grade deleted", zap.String("grade_id", gradeID))
	return nil
}

// ListForStudent returns the student's own grades with course context.
func (s *GradeService) ListForStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return grades, nil
}

// ListForSection returns all grades in a section for its owning faculty.
// Admins may view any section.
func (s *GradeService) ListForSection(ctx context.Context, callerID string, role models.UserRole, sectionID string) ([]models.SectionGradeRow, error) {
	if err := s.authorizeSectionView(ctx, callerID, role, sectionID); err != nil {
		return nil, err
	}
	rows, err := s.grades.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return rows, nil
}

// StatsForSection aggregates percentage statistics for a section's grades.
func (s *GradeService) StatsForSection(ctx context.Context, callerID string, role models.UserRole, sectionID string) (*models.SectionGradeStats, error) {
	if err := s.authorizeSectionView(ctx, callerID, role, sectionID); err != nil {
		return nil, err
	}
	stats, err := s.grades.SectionStats(ctx, sectionID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}
	return stats, nil
}

func (s *GradeService) authorizeSectionView(ctx context.Context, callerID string, role models.UserRole, sectionID string) error {
	section, err := s.sections.FindSectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "section not found")
		}
		return apperrors.FromError(err)
	}
	if role == models.RoleAdmin {
		return nil
	}
	if section.FacultyID != callerID {
		return apperrors.Clone(apperrors.ErrForbidden, "only the section faculty may view section grades")
	}
	return nil
}
