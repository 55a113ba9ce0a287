package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
// Rows are never deleted; a pair toggles between enrolled and dropped.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped  EnrollmentStatus = "dropped"
)

// Enrollment captures a student's admission into a section. CourseID is
// denormalized from the section so the one-active-enrollment-per-course
// invariant can be enforced by a partial unique index.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with section and course info.
type EnrollmentDetail struct {
	Enrollment
	SectionName string `db:"section_name" json:"section_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	Semester    string `db:"semester" json:"semester"`
	Year        int    `db:"year" json:"year"`
}
