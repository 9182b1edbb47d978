package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrNoStages        = errors.New("pipeline has no stages")
	ErrPersistFailed   = errors.New("persist board changes")
	ErrInvalidBulkSpec = errors.New("invalid bulk request")
)
