package cells

import (
	"errors"
	"fmt"
)

// errors.go provides the error types of the cells package
//
// error type checking:
//   persistence errors can be checked using errors.Is(err, ErrType)

// used for document and template files
var (
	ErrParse        = errors.New("parse error")
	ErrIO           = errors.New("io error")
	ErrMissingField = errors.New("missing field")
	// text fields are utf-8. encoding never replaces invalid bytes
	ErrInvalidText = errors.New("invalid utf-8 text")
)

// used by the view bridge
var (
	ErrFileDenied   = errors.New("file not allowed")
	ErrBridgeClosed = errors.New("bridge closed")
)

// IndexError is a contract violation: a view published an index that is not
// a valid position in the target sequence. It is raised with panic and never
// converted to an error event.
type IndexError struct {
	Name  string
	Index int
	Len   int
}

func (self *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", self.Name, self.Index, self.Len)
}

func requireIndex(name string, index int, n int) {
	if index < 0 || n <= index {
		panic(&IndexError{
			Name:  name,
			Index: index,
			Len:   n,
		})
	}
}

func parseError(err error) error {
	return fmt.Errorf("%w: %w", ErrParse, err)
}

func ioError(err error) error {
	return fmt.Errorf("%w: %w", ErrIO, err)
}
