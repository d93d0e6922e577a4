package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	// ErrStaleLock is returned by a checkpoint whose lock was stolen by
	// another worker before the write landed. Callers must discard the
	// write; it is not a failure of the underlying operation.
	ErrStaleLock = errors.New("stale lock")
)
