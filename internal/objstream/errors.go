package objstream

import (
	"errors"
	"fmt"
)

// ErrStreamCorrupted reports a stream that is truncated, has a bad header, or
// carries a record or body that cannot be decoded.
var ErrStreamCorrupted = errors.New("objstream: stream corrupted")

// InvalidClassError reports a record whose class cannot be used: the filter
// rejected it, it is unknown locally, or its serial version does not match.
type InvalidClassError struct {
	Class  string
	Reason string
}

func (e *InvalidClassError) Error() string {
	if e.Class == "" {
		return "objstream: invalid class: " + e.Reason
	}
	return fmt.Sprintf("objstream: invalid class %s: %s", e.Class, e.Reason)
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStreamCorrupted, fmt.Sprintf(format, args...))
}
