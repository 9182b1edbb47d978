package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidColor    = errors.New("invalid color")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidStageID  = errors.New("invalid stage id")
	ErrInvalidScore    = errors.New("invalid score")
	ErrInvalidEmail    = errors.New("invalid email")
)
