package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned by the standard methods when the resolver has no session
	ErrNoSession = errors.New("no session configured")

	// ErrBadParams is returned when a callback receives parameters it cannot use
	ErrBadParams = errors.New("invalid callback parameters")
)

// TypeNotFoundError is returned when a model-type name is not registered
type TypeNotFoundError struct {
	Name string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("model type %s not found", e.Name)
}
