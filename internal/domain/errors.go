package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a persisted session or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a malformed or undeserializable client message.
	ErrValidation = errors.New("invalid message")

	// ErrPersistence wraps storage-layer failures.
	ErrPersistence = errors.New("persistence failure")

	// ErrTransport marks a frame that could not be delivered. It ends the connection loop.
	ErrTransport = errors.New("transport failure")
)

// DeniedError is returned by the security gate when a constrained session
// requests a workflow outside its allowlist.
type DeniedError struct {
	Intent  WorkflowIntent
	Allowed []WorkflowIntent
	Reason  string
}

func (e *DeniedError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, a := range e.Allowed {
		allowed = append(allowed, string(a))
	}
	msg := fmt.Sprintf("widget mode: workflow %q not permitted, only [%s] workflows allowed",
		e.Intent, strings.Join(allowed, ", "))
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// IsDenied reports whether err is a security gate rejection.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}
