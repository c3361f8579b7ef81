package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotARecord is returned by the typed accessors when a value has an unexpected type
var ErrNotARecord = errors.New("value is not a record")

// ErrNilRecord is returned when an attribute is read on a nil record
var ErrNilRecord = errors.New("nil record")

// UnknownAttributeError is returned when a name is neither a plain field nor a
// declared relationship of the record's model type
type UnknownAttributeError struct {
	Model         string
	Name          string
	Relationships []string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %s (relationships: [%s])",
		e.Model, e.Name, strings.Join(e.Relationships, ", "))
}

// CallbackNotFoundError is returned when a relationship's bound method does not
// exist on the record's model type
type CallbackNotFoundError struct {
	Model        string
	Relationship string
	Method       string
}

func (e *CallbackNotFoundError) Error() string {
	return fmt.Sprintf("%s.%s: callback method %s not found", e.Model, e.Relationship, e.Method)
}

// RelationshipResolutionError wraps a failure raised while fulfilling a relationship
type RelationshipResolutionError struct {
	Model        string
	Relationship string
	Target       string
	Err          error
}

func (e *RelationshipResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s.%s (%s): %v", e.Model, e.Relationship, e.Target, e.Err)
}

func (e *RelationshipResolutionError) Unwrap() error {
	return e.Err
}
