package render

import "fmt"

// Error is returned for any failure while producing an image. No asset is left behind.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
