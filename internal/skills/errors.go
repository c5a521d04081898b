// Package skills talks to the external skills router and loads skill content from disk.
package skills

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindExec      ErrorKind = "exec"      // router could not run or exited non-zero
	KindOutput    ErrorKind = "output"    // stdout unreadable
	KindMalformed ErrorKind = "malformed" // output or index is not a valid document
	KindNotFound  ErrorKind = "not_found" // skill id, path or index missing
)

// RouterError is returned by every adapter operation.
type RouterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RouterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("skills %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("skills %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFound adapter error.
func IsNotFound(err error) bool {
	var re *RouterError
	return errors.As(err, &re) && re.Kind == KindNotFound
}
