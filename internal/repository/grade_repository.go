package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campus-board/enroll-api/internal/models"
)

// GradeRepository persists grade records. The enrollment_id unique constraint
// guarantees at most one grade per enrollment regardless of request timing.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Create inserts a grade. Returns ErrDuplicateGrade when the enrollment is
// already graded; concurrent uploads collapse onto the constraint.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	const query = `INSERT INTO grades (id, enrollment_id, grade, percentage, remarks, uploaded_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :grade, :percentage, :remarks, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		if isUniqueViolation(err, "grades_enrollment_id_key") {
			return ErrDuplicateGrade
		}
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// FindByID returns a grade by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, enrollment_id, grade, percentage, remarks, uploaded_by, created_at, updated_at
        FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindByEnrollment returns the grade attached to an enrollment, if any.
func (r *GradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	const query = `SELECT id, enrollment_id, grade, percentage, remarks, uploaded_by, created_at, updated_at
        FROM grades WHERE enrollment_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// GradeUpdate carries the optional fields of a partial grade update.
// Nil fields are left untouched.
type GradeUpdate struct {
	Grade      *string
	Percentage *float64
	Remarks    *string
}

// Update applies a partial update and stamps updated_at. A no-op update still
// succeeds so retried requests converge.
func (r *GradeRepository) Update(ctx context.Context, id string, update GradeUpdate) error {
	sets := []string{}
	args := map[string]interface{}{"id": id, "updated_at": time.Now().UTC()}
	if update.Grade != nil {
		sets = append(sets, "grade = :grade")
		args["grade"] = *update.Grade
	}
	if update.Percentage != nil {
		sets = append(sets, "percentage = :percentage")
		args["percentage"] = *update.Percentage
	}
	if update.Remarks != nil {
		sets = append(sets, "remarks = :remarks")
		args["remarks"] = *update.Remarks
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = :updated_at")

	query := fmt.Sprintf(`UPDATE grades SET %s WHERE id = :id`, strings.Join(sets, ", "))
	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade record.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// SectionFacultyByEnrollment resolves the owning faculty of the section an
// enrollment belongs to. Used for upload permission checks.
func (r *GradeRepository) SectionFacultyByEnrollment(ctx context.Context, enrollmentID string) (string, error) {
	const query = `SELECT s.faculty_id FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        WHERE e.id = $1`
	var facultyID string
	if err := r.db.GetContext(ctx, &facultyID, query, enrollmentID); err != nil {
		return "", err
	}
	return facultyID, nil
}

// SectionFacultyByGrade resolves the owning faculty of the section a grade's
// enrollment belongs to. Used for update and delete permission checks.
func (r *GradeRepository) SectionFacultyByGrade(ctx context.Context, gradeID string) (string, error) {
	const query = `SELECT s.faculty_id FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN sections s ON s.id = e.section_id
        WHERE g.id = $1`
	var facultyID string
	if err := r.db.GetContext(ctx, &facultyID, query, gradeID); err != nil {
		return "", err
	}
	return facultyID, nil
}

// ListByStudent returns the student's grades joined with course context,
// newest first.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_id, g.grade, g.percentage, g.remarks, g.uploaded_by, g.created_at, g.updated_at,
        c.code AS course_code, c.name AS course_name, s.semester, s.year
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY g.created_at DESC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// ListBySection returns all grades in a section with the graded student,
// ordered by student name for stable reports.
func (r *GradeRepository) ListBySection(ctx context.Context, sectionID string) ([]models.SectionGradeRow, error) {
	const query = `SELECT g.id, g.enrollment_id, g.grade, g.percentage, g.remarks, g.uploaded_by, g.created_at, g.updated_at,
        u.full_name AS student_name, u.email AS student_email
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN users u ON u.id = e.student_id
        WHERE e.section_id = $1
        ORDER BY u.full_name ASC`
	var rows []models.SectionGradeRow
	if err := r.db.SelectContext(ctx, &rows, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section grades: %w", err)
	}
	return rows, nil
}

// SectionStats aggregates percentage statistics over a section's grades.
// Percentage is optional on a grade, so the aggregates may be null even when
// grades exist.
func (r *GradeRepository) SectionStats(ctx context.Context, sectionID string) (*models.SectionGradeStats, error) {
	const query = `SELECT COUNT(*) AS total_graded,
        AVG(g.percentage) AS average, MAX(g.percentage) AS highest, MIN(g.percentage) AS lowest
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        WHERE e.section_id = $1`
	var stats struct {
		TotalGraded int      `db:"total_graded"`
		Average     *float64 `db:"average"`
		Highest     *float64 `db:"highest"`
		Lowest      *float64 `db:"lowest"`
	}
	if err := r.db.GetContext(ctx, &stats, query, sectionID); err != nil {
		return nil, fmt.Errorf("section grade stats: %w", err)
	}
	return &models.SectionGradeStats{
		TotalGraded: stats.TotalGraded,
		Average:     stats.Average,
		Highest:     stats.Highest,
		Lowest:      stats.Lowest,
	}, nil
}
