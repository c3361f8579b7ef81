package copier

import "fmt"

// UnexpectedValueError is returned when an attribute holds a value the copier
// cannot duplicate, such as a function, a channel or an arbitrary struct
type UnexpectedValueError struct {
	Model     string
	Attribute string
	Type      string
}

func (e *UnexpectedValueError) Error() string {
	return fmt.Sprintf("cannot copy %s.%s: unsupported value of type %s", e.Model, e.Attribute, e.Type)
}
