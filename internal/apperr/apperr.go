// Package apperr defines the failure classes handlers report to the request lifecycle.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a handler failure.
type Kind int

const (
	// KindServerFault is the zero Kind so unclassified errors land on the fault path.
	KindServerFault Kind = iota
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "server_fault"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified handler failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing resource.
func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Forbidden reports an access check failure.
func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// ServerFault wraps err as a server fault.
func ServerFault(message string, err error) error {
	return &Error{Kind: KindServerFault, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors without a classification are server faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerFault
}
