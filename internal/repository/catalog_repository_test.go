package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-board/enroll-api/internal/models"
)

func newCatalogRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCatalogRepositoryListOpenSections(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "course_id", "faculty_id", "name", "capacity", "semester", "year", "is_open", "created_at", "updated_at",
		"course_code", "course_name", "course_description", "faculty_name", "faculty_email", "enrolled_count",
	}).AddRow("sec-1", "course-1", "fac-1", "Section A", 30, "FALL", 2026, true, now, now,
		"CS101", "Intro to CS", "Fundamentals", "Grace Hopper", "grace@example.edu", 12)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.is_open = TRUE")).WillReturnRows(rows)

	sections, err := repo.ListOpenSections(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "CS101", sections[0].CourseCode)
	require.Equal(t, 12, sections[0].EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryCreateSectionNewCourse(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE code = $1")).
		WithArgs("CS101").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO courses")).
		WithArgs(sqlmock.AnyArg(), "CS101", "Intro to CS", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "fac-1", "Section A", 30, "FALL", 2026, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	course := &models.Course{Code: "CS101", Name: "Intro to CS"}
	section := &models.Section{FacultyID: "fac-1", Name: "Section A", Capacity: 30, Semester: "FALL", Year: 2026, IsOpen: true}
	require.NoError(t, repo.CreateSection(context.Background(), course, section))
	require.NotEmpty(t, course.ID)
	require.Equal(t, course.ID, section.CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryCreateSectionExistingCourse(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE code = $1")).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
		WithArgs(sqlmock.AnyArg(), "course-1", "fac-1", "Section B", 20, "SPRING", 2027, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	course := &models.Course{Code: "CS101", Name: "Intro to CS"}
	section := &models.Section{FacultyID: "fac-1", Name: "Section B", Capacity: 20, Semester: "SPRING", Year: 2027, IsOpen: true}
	require.NoError(t, repo.CreateSection(context.Background(), course, section))
	require.Equal(t, "course-1", section.CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryUpdateSectionPartial(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	closed := false
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET is_open = ?, updated_at = ? WHERE id = ?")).
		WithArgs(closed, sqlmock.AnyArg(), "sec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateSection(context.Background(), "sec-1", SectionUpdate{IsOpen: &closed}))
	require.NoError(t, mock.ExpectationsWereMet())
}
