package record

import "strings"

// PathError annotates a failure with the dotted field path at which it happened
type PathError struct {
	Path []string
	Err  error
}

func (e *PathError) Error() string {
	return strings.Join(e.Path, ".") + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// WithPath prefixes the path of err with segment. A nil err stays nil.
func WithPath(segment string, err error) error {
	if err == nil {
		return nil
	}

	if pe, ok := err.(*PathError); ok {
		path := make([]string, 0, len(pe.Path)+1)
		path = append(path, segment)
		path = append(path, pe.Path...)
		return &PathError{Path: path, Err: pe.Err}
	}
	return &PathError{Path: []string{segment}, Err: err}
}
