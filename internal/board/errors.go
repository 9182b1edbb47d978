package board

import "errors"

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidBoard  = errors.New("invalid board")
)
