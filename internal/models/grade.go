package models

import "time"

// Grade holds at most one grade record per enrollment.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Grade        string    `db:"grade" json:"grade"`
	Percentage   *float64  `db:"percentage" json:"percentage,omitempty"`
	Remarks      *string   `db:"remarks" json:"remarks,omitempty"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail enriches Grade with course context for student listings.
type GradeDetail struct {
	Grade
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
	Semester   string `db:"semester" json:"semester"`
	Year       int    `db:"year" json:"year"`
}

// SectionGradeRow is a grade joined with the graded student for faculty views.
type SectionGradeRow struct {
	Grade
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// SectionGradeStats aggregates percentage statistics for a section.
type SectionGradeStats struct {
	TotalGraded int      `json:"total_graded"`
	Average     *float64 `json:"average,omitempty"`
	Highest     *float64 `json:"highest,omitempty"`
	Lowest      *float64 `json:"lowest,omitempty"`
}
