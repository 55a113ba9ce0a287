package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-board/enroll-api/internal/models"
)

// CatalogRepository serves the course and section catalog.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListOpenSections returns all open sections with course and faculty context
// plus the live enrolled count, ordered by course code then section name.
func (r *CatalogRepository) ListOpenSections(ctx context.Context) ([]models.SectionWithCount, error) {
	const query = `SELECT s.id, s.course_id, s.faculty_id, s.name, s.capacity, s.semester, s.year, s.is_open, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.description AS course_description,
        u.full_name AS faculty_name, u.email AS faculty_email,
        COUNT(e.id) FILTER (WHERE e.status = 'enrolled') AS enrolled_count
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.faculty_id
        LEFT JOIN enrollments e ON e.section_id = s.id
        WHERE s.is_open = TRUE
        GROUP BY s.id, c.code, c.name, c.description, u.full_name, u.email
        ORDER BY c.code ASC, s.name ASC`
	var rows []struct {
		models.SectionDetail
		EnrolledCount int `db:"enrolled_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list open sections: %w", err)
	}
	sections := make([]models.SectionWithCount, 0, len(rows))
	for _, row := range rows {
		sections = append(sections, models.SectionWithCount{
			SectionDetail: row.SectionDetail,
			EnrolledCount: row.EnrolledCount,
		})
	}
	return sections, nil
}

// FindSectionByID returns the bare section row.
func (r *CatalogRepository) FindSectionByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, faculty_id, name, capacity, semester, year, is_open, created_at, updated_at
        FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindSectionDetail returns a section with course and faculty context.
func (r *CatalogRepository) FindSectionDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.course_id, s.faculty_id, s.name, s.capacity, s.semester, s.year, s.is_open, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.description AS course_description,
        u.full_name AS faculty_name, u.email AS faculty_email
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.faculty_id
        WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindCourseByID returns a course by its ID.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, name, description, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListCourses returns every course, ordered by code.
func (r *CatalogRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT id, code, name, description, created_at FROM courses ORDER BY code ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// CreateSection inserts a section for an existing or new course in one
// transaction. The course is matched by code; a fresh course row is created
// when no match exists.
func (r *CatalogRepository) CreateSection(ctx context.Context, course *models.Course, section *models.Section) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create section: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var courseID string
	const findCourse = `SELECT id FROM courses WHERE code = $1`
	err = tx.GetContext(ctx, &courseID, findCourse, course.Code)
	switch {
	case err == nil:
		course.ID = courseID
	case err == sql.ErrNoRows:
		course.ID = uuid.NewString()
		course.CreatedAt = time.Now().UTC()
		const insertCourse = `INSERT INTO courses (id, code, name, description, created_at)
            VALUES (:id, :code, :name, :description, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertCourse, course); err != nil {
			return fmt.Errorf("create course: %w", err)
		}
	default:
		return fmt.Errorf("find course: %w", err)
	}

	now := time.Now().UTC()
	section.ID = uuid.NewString()
	section.CourseID = course.ID
	section.CreatedAt = now
	section.UpdatedAt = now
	const insertSection = `INSERT INTO sections (id, course_id, faculty_id, name, capacity, semester, year, is_open, created_at, updated_at)
        VALUES (:id, :course_id, :faculty_id, :name, :capacity, :semester, :year, :is_open, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertSection, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create section: %w", err)
	}
	return nil
}

// SectionUpdate carries the optional fields of a partial section update.
type SectionUpdate struct {
	Name     *string
	Capacity *int
	IsOpen   *bool
}

// UpdateSection applies a partial update and stamps updated_at.
func (r *CatalogRepository) UpdateSection(ctx context.Context, id string, update SectionUpdate) error {
	sets := []string{}
	args := map[string]interface{}{"id": id, "updated_at": time.Now().UTC()}
	if update.Name != nil {
		sets = append(sets, "name = :name")
		args["name"] = *update.Name
	}
	if update.Capacity != nil {
		sets = append(sets, "capacity = :capacity")
		args["capacity"] = *update.Capacity
	}
	if update.IsOpen != nil {
		sets = append(sets, "is_open = :is_open")
		args["is_open"] = *update.IsOpen
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = :updated_at")

	query := fmt.Sprintf(`UPDATE sections SET %s WHERE id = :id`, strings.Join(sets, ", "))
	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}
