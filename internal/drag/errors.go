package drag

import "errors"

var (
	ErrSessionActive = errors.New("drag session already active")
	ErrNoSession     = errors.New("no active drag session")
	ErrModeMismatch  = errors.New("drag kind does not match reorder mode")
	ErrInvalidKind   = errors.New("invalid drag kind")
)
