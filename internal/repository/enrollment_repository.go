package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-board/enroll-api/internal/models"
)

// EnrollmentRepository is the authoritative ledger of enrollment facts.
// Admission decisions are serialized per section by a row lock so the
// capacity check and the write form a single atomic unit.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

type lockedSection struct {
	ID       string `db:"id"`
	CourseID string `db:"course_id"`
	Capacity int    `db:"capacity"`
	IsOpen   bool   `db:"is_open"`
}

// Admit decides a single enrollment request inside one transaction.
//
// The section row is locked FOR UPDATE for the duration, so concurrent
// admissions against the same section serialize at the store. The enrolled
// count is recomputed under that lock, never cached. Re-enrollment reuses the
// existing (student, section) row instead of inserting a second one.
//
// Returns sql.ErrNoRows when the section does not exist, ErrSectionClosed,
// ErrAlreadyEnrolled or ErrSectionFull for precondition failures, and passes
// transient conflicts through for the caller to retry.
func (r *EnrollmentRepository) Admit(ctx context.Context, studentID, sectionID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var section lockedSection
	const lockQuery = `SELECT id, course_id, capacity, is_open FROM sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &section, lockQuery, sectionID); err != nil {
		return nil, err
	}
	if !section.IsOpen {
		return nil, ErrSectionClosed
	}

	var one int
	const activeQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	err = tx.GetContext(ctx, &one, activeQuery, studentID, section.CourseID, models.EnrollmentStatusEnrolled)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active enrollment: %w", err)
	}

	var enrolled int
	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	if err = tx.GetContext(ctx, &enrolled, countQuery, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}
	if enrolled >= section.Capacity {
		return nil, ErrSectionFull
	}

	now := time.Now().UTC()
	var existing models.Enrollment
	const pairQuery = `SELECT id, student_id, section_id, course_id, status, enrolled_at, created_at, updated_at
        FROM enrollments WHERE student_id = $1 AND section_id = $2 FOR UPDATE`
	err = tx.GetContext(ctx, &existing, pairQuery, studentID, sectionID)
	switch {
	case err == nil:
		const reactivate = `UPDATE enrollments SET status = $2, enrolled_at = $3, updated_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, reactivate, existing.ID, models.EnrollmentStatusEnrolled, now); err != nil {
			if isUniqueViolation(err, "") {
				// A concurrent admission for the same student won the race.
				return nil, ErrAlreadyEnrolled
			}
			return nil, fmt.Errorf("reactivate enrollment: %w", err)
		}
		existing.Status = models.EnrollmentStatusEnrolled
		existing.EnrolledAt = now
		existing.UpdatedAt = now
		enrollment = &existing
	case err == sql.ErrNoRows:
		enrollment = &models.Enrollment{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			SectionID:  sectionID,
			CourseID:   section.CourseID,
			Status:     models.EnrollmentStatusEnrolled,
			EnrolledAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		const insert = `INSERT INTO enrollments (id, student_id, section_id, course_id, status, enrolled_at, created_at, updated_at)
            VALUES (:id, :student_id, :section_id, :course_id, :status, :enrolled_at, :created_at, :updated_at)`
		if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
			if isUniqueViolation(err, "") {
				// A concurrent admission for the same student won the race.
				return nil, ErrAlreadyEnrolled
			}
			return nil, fmt.Errorf("create enrollment: %w", err)
		}
	default:
		return nil, fmt.Errorf("load enrollment pair: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return enrollment, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, course_id, status, enrolled_at, created_at, updated_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Drop marks an enrollment as dropped. The row persists for the audit trail;
// repeated drops are harmless.
func (r *EnrollmentRepository) Drop(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, time.Now().UTC()); err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	return nil
}

// ListActiveByStudent returns the student's enrolled rows joined with section
// and course info, most recent first.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.course_id, e.status, e.enrolled_at, e.created_at, e.updated_at,
        s.name AS section_name, s.semester, s.year, c.code AS course_code, c.name AS course_name
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// CountEnrolled returns the live enrolled count for a section. Only used for
// read paths; admission recomputes the count inside its own transaction.
func (r *EnrollmentRepository) CountEnrolled(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}
