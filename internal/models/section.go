package models

import "time"

// Section is an enrollable, capacity-bounded offering of a course,
// owned by a single faculty member. Capacity is always positive.
type Section struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Semester  string    `db:"semester" json:"semester"`
	Year      int       `db:"year" json:"year"`
	IsOpen    bool      `db:"is_open" json:"is_open"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course and faculty info for listings.
type SectionDetail struct {
	Section
	CourseCode        string `db:"course_code" json:"course_code"`
	CourseName        string `db:"course_name" json:"course_name"`
	CourseDescription string `db:"course_description" json:"course_description,omitempty"`
	FacultyName       string `db:"faculty_name" json:"faculty_name"`
	FacultyEmail      string `db:"faculty_email" json:"faculty_email"`
}

// SectionWithCount pairs a section with its live enrolled count.
type SectionWithCount struct {
	SectionDetail
	EnrolledCount int `json:"enrolled_count"`
}
