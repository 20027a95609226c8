package domain

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPermission  = errors.New("permission denied")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("temporarily unavailable")
)

// ErrSlugTaken is returned when an insert or update hits the unique slug
// constraint. It matches ErrConflict.
var ErrSlugTaken = &conflictError{msg: "slug already taken"}

type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool {
	return target == ErrConflict
}
