package loader

import "errors"

// ErrUnexpectedValue is returned when a raw value has a shape the loader cannot use
var ErrUnexpectedValue = errors.New("unexpected raw value")
