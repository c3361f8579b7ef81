package dumper

import "errors"

var (
	// ErrInvalidInclude is returned when an include tree cannot be parsed
	ErrInvalidInclude = errors.New("invalid include tree")

	// ErrUnexpectedValue is returned when a relationship holds something other than records
	ErrUnexpectedValue = errors.New("unexpected relationship value")
)
