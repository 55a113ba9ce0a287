package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
)

type fakeGradeStore struct {
	grades        map[string]*models.Grade
	byEnrollment  map[string]string
	sectionOwners map[string]string
	ownerByEnroll map[string]string
	sectionRows   map[string][]models.SectionGradeRow
	stats         map[string]*models.SectionGradeStats
}

func newFakeGradeStore() *fakeGradeStore {
	return &fakeGradeStore{
		grades:        make(map[string]*models.Grade),
		byEnrollment:  make(map[string]string),
		sectionOwners: make(map[string]string),
		ownerByEnroll: make(map[string]string),
		sectionRows:   make(map[string][]models.SectionGradeRow),
		stats:         make(map[string]*models.SectionGradeStats),
	}
}

func (f *fakeGradeStore) Create(ctx context.Context, grade *models.Grade) error {
	if _, exists := f.byEnrollment[grade.EnrollmentID]; exists {
		return repository.ErrDuplicateGrade
	}
	f.grades[grade.ID] = grade
	f.byEnrollment[grade.EnrollmentID] = grade.ID
	return nil
}

func (f *fakeGradeStore) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := f.grades[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradeStore) Update(ctx context.Context, id string, update repository.GradeUpdate) error {
	g, ok := f.grades[id]
	if !ok {
		return sql.ErrNoRows
	}
	if update.Grade != nil {
		g.Grade = *update.Grade
	}
	if update.Percentage != nil {
		g.Percentage = update.Percentage
	}
	if update.Remarks != nil {
		g.Remarks = update.Remarks
	}
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeGradeStore) Delete(ctx context.Context, id string) error {
	if g, ok := f.grades[id]; ok {
		delete(f.byEnrollment, g.EnrollmentID)
		delete(f.grades, id)
	}
	return nil
}

func (f *fakeGradeStore) SectionFacultyByEnrollment(ctx context.Context, enrollmentID string) (string, error) {
	if owner, ok := f.ownerByEnroll[enrollmentID]; ok {
		return owner, nil
	}
	return "", sql.ErrNoRows
}

func (f *fakeGradeStore) SectionFacultyByGrade(ctx context.Context, gradeID string) (string, error) {
	g, ok := f.grades[gradeID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return f.SectionFacultyByEnrollment(ctx, g.EnrollmentID)
}

func (f *fakeGradeStore) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	return nil, nil
}

func (f *fakeGradeStore) ListBySection(ctx context.Context, sectionID string) ([]models.SectionGradeRow, error) {
	return f.sectionRows[sectionID], nil
}

func (f *fakeGradeStore) SectionStats(ctx context.Context, sectionID string) (*models.SectionGradeStats, error) {
	if s, ok := f.stats[sectionID]; ok {
		return s, nil
	}
	return &models.SectionGradeStats{}, nil
}

type fakeSectionFinder struct {
	sections map[string]*models.Section
}

func (f *fakeSectionFinder) FindSectionByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := f.sections[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

const testEnrollmentID = "7a1b9c44-0e52-4f3a-a97a-6f2e8d1c3b10"

func newGradeServiceForTest(t *testing.T) (*GradeService, *fakeGradeStore, *fakeEnrollmentStore, *fakeSectionFinder) {
	t.Helper()
	grades := newFakeGradeStore()
	enrollments := newFakeEnrollmentStore()
	sections := &fakeSectionFinder{sections: make(map[string]*models.Section)}
	svc := NewGradeService(grades, enrollments, sections, validator.New(), zap.NewNop())
	return svc, grades, enrollments, sections
}

func seedActiveEnrollment(grades *fakeGradeStore, enrollments *fakeEnrollmentStore, facultyID string) {
	enrollments.enrollments[testEnrollmentID] = &models.Enrollment{
		ID:        testEnrollmentID,
		StudentID: "stu-1",
		SectionID: testSectionID,
		CourseID:  "course-1",
		Status:    models.EnrollmentStatusEnrolled,
	}
	grades.ownerByEnroll[testEnrollmentID] = facultyID
}

func TestGradeUploadCreatesSingleGrade(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	percentage := 88.0
	grade, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "A-",
		Percentage:   &percentage,
	})
	require.NoError(t, err)
	require.Equal(t, testEnrollmentID, grade.EnrollmentID)
	require.Equal(t, "fac-1", grade.UploadedBy)

	_, err = svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "B",
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	require.Len(t, grades.grades, 1)
}

func TestGradeUploadForeignFacultyForbidden(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	_, err := svc.Upload(context.Background(), "fac-2", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "A",
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
	require.Empty(t, grades.grades)
}

func TestGradeUploadDroppedEnrollmentRejected(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")
	enrollments.enrollments[testEnrollmentID].Status = models.EnrollmentStatusDropped

	_, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "A",
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrPreconditionFailed))
}

func TestGradeUploadUnknownEnrollment(t *testing.T) {
	svc, _, _, _ := newGradeServiceForTest(t)

	_, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "A",
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestGradeUploadInvalidLetter(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	_, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "Z",
	})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

func TestGradeUpdatePartial(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	created, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "B",
	})
	require.NoError(t, err)

	newLetter := "A"
	updated, err := svc.Update(context.Background(), "fac-1", created.ID, &UpdateGradeRequest{Grade: &newLetter})
	require.NoError(t, err)
	require.Equal(t, "A", updated.Grade)
	require.Equal(t, created.EnrollmentID, updated.EnrollmentID)
}

func TestGradeUpdateForeignFacultyForbidden(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	created, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "B",
	})
	require.NoError(t, err)

	newLetter := "A"
	_, err = svc.Update(context.Background(), "fac-2", created.ID, &UpdateGradeRequest{Grade: &newLetter})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestGradeDelete(t *testing.T) {
	svc, grades, enrollments, _ := newGradeServiceForTest(t)
	seedActiveEnrollment(grades, enrollments, "fac-1")

	created, err := svc.Upload(context.Background(), "fac-1", &UploadGradeRequest{
		EnrollmentID: testEnrollmentID,
		Grade:        "B",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "fac-1", created.ID))
	require.Empty(t, grades.grades)

	err = svc.Delete(context.Background(), "fac-1", created.ID)
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestSectionGradeViewsOwnership(t *testing.T) {
	svc, grades, _, sections := newGradeServiceForTest(t)
	sections.sections[testSectionID] = &models.Section{ID: testSectionID, FacultyID: "fac-1"}
	grades.sectionRows[testSectionID] = []models.SectionGradeRow{
		{Grade: models.Grade{ID: "grade-1", Grade: "A"}, StudentName: "Ada"},
	}

	rows, err := svc.ListForSection(context.Background(), "fac-1", models.RoleFaculty, testSectionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = svc.ListForSection(context.Background(), "fac-2", models.RoleFaculty, testSectionID)
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	rows, err = svc.ListForSection(context.Background(), "admin-1", models.RoleAdmin, testSectionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSectionStatsUnknownSection(t *testing.T) {
	svc, _, _, _ := newGradeServiceForTest(t)

	_, err := svc.StatsForSection(context.Background(), "fac-1", models.RoleFaculty, testSectionID)
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
