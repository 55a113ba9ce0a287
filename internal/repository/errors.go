package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by ledger writes so services can map them onto the
// API error taxonomy without parsing driver errors themselves.
var (
	ErrSectionClosed   = errors.New("section is closed")
	ErrSectionFull     = errors.New("section is at capacity")
	ErrAlreadyEnrolled = errors.New("student already holds an active enrollment for this course")
	ErrDuplicateGrade  = errors.New("grade already exists for enrollment")
	ErrDuplicateEmail  = errors.New("email already registered")
)

// isUniqueViolation reports whether err is a Postgres unique_violation,
// optionally scoped to a single constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || string(pqErr.Constraint) == constraint
}

// IsRetryableConflict reports whether err is a transient transaction conflict
// (serialization failure or deadlock) that a caller may retry.
func IsRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
