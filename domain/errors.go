package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates that no record has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrFetchFailed indicates that listing records failed in the backend.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrOperationFailed indicates that a backend call other than a list failed.
	ErrOperationFailed = errors.New("operation failed")
)

// Error is returned by every façade implementation. errors.Is matches both
// its Kind and the wrapped backend cause.
type Error struct {
	Kind   error
	Entity string
	Op     string
	ID     string
	// Message is the human readable text, usually supplied by the backend.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.defaultMessage()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) defaultMessage() string {
	switch e.Kind {
	case ErrNotFound:
		return capitalize(e.Entity) + " not found"
	case ErrFetchFailed:
		return "Failed to fetch " + plural(e.Entity)
	}
	if e.Op == "" {
		return "Failed to process " + e.Entity
	}
	return "Failed to " + e.Op + " " + e.Entity
}

// NotFound builds the error returned for an unknown id.
func NotFound(entity, op, id string) *Error {
	return &Error{Kind: ErrNotFound, Entity: entity, Op: op, ID: id}
}

// FetchFailed wraps a backend failure while listing records.
func FetchFailed(entity string, err error) *Error {
	return &Error{Kind: ErrFetchFailed, Entity: entity, Op: "fetch", Err: err}
}

// OperationFailed wraps a backend failure. msg may be empty.
func OperationFailed(entity, op, id, msg string, err error) *Error {
	return &Error{Kind: ErrOperationFailed, Entity: entity, Op: op, ID: id, Message: msg, Err: err}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func plural(s string) string {
	switch {
	case s == "":
		return "records"
	case strings.HasSuffix(s, "y"):
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
