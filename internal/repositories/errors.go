package repositories

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write lost to a uniqueness constraint, such as
	// a duplicate active session code or a second final vote.
	ErrConflict = errors.New("record conflict")
)
