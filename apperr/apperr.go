// Package apperr defines the closed set of error kinds crossing component boundaries.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can branch without parsing messages
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTransientProvider
	KindPermanentProvider
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransientProvider:
		return "transient_provider"
	case KindPermanentProvider:
		return "permanent_provider"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error carries a Kind, the failing operation and the cause
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &Error{Kind: k}) match on kind alone
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// E builds an *Error
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Validation is shorthand for a validation failure
func Validation(op, format string, args ...interface{}) *Error {
	return Errorf(KindValidation, op, format, args...)
}

// KindOf returns the kind of the first *Error in the chain.
// Context deadlines count as transient provider failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientProvider
	}
	return KindUnknown
}

// IsKind reports whether err is of kind k
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// HTTPStatus maps an error to the response status used by the API layer
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransientProvider, KindPermanentProvider:
		return http.StatusBadGateway
	case KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
