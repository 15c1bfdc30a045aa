package neomodel

import (
	"errors"
	"fmt"
)

// ErrNotFound is a sentinel error returned when a lookup that must produce a
// record finds nothing. A not-found TransportError also matches it.
var ErrNotFound = errors.New("record not found")

// Transport category sentinels. A *TransportError matches the sentinel of
// its own category with errors.Is.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("conflict")
	ErrServerError = errors.New("server error")
)

// Schema sentinels, always delivered wrapped in a *SchemaError.
var (
	ErrDuplicateProperty = errors.New("property already defined")
	ErrValidation        = errors.New("property validation failed")
	ErrRequired          = errors.New("property is required")
	ErrUnknownProperty   = errors.New("unknown property")
)

var (
	// ErrUnsupported is returned by backends for operations they cannot perform.
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrUnsupportedValue is returned when a value has no wire representation.
	ErrUnsupportedValue = errors.New("unsupported value representation")

	// ErrNotPersisted is returned when an element without an identifier is
	// used where a persisted element is required.
	ErrNotPersisted = errors.New("element has not been persisted")

	// ErrIdentityChanged is returned when hydration would replace an
	// element's backend identifier.
	ErrIdentityChanged = errors.New("element identifier cannot change")

	// ErrNoIndex is returned when an operation needs a backing index and the
	// proxy has none.
	ErrNoIndex = errors.New("proxy has no backing index")

	// ErrEmptyResponse is returned when a round trip that must yield a
	// result yields none.
	ErrEmptyResponse = errors.New("response contains no results")
)

// Category classifies the outcome of one backend round trip.
type Category int

const (
	CategorySuccess Category = iota
	CategoryBadRequest
	CategoryNotFound
	CategoryConflict
	CategoryServerError
)

// String returns the string representation of the Category.
func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryBadRequest:
		return "bad-request"
	case CategoryNotFound:
		return "not-found"
	case CategoryConflict:
		return "conflict"
	case CategoryServerError:
		return "server-error"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP-style status code onto a Category. Unknown 4xx codes
// are bad requests; anything else outside 2xx is a server error.
func Classify(status int) Category {
	switch {
	case status >= 200 && status < 300:
		return CategorySuccess
	case status == 404:
		return CategoryNotFound
	case status == 409:
		return CategoryConflict
	case status >= 400 && status < 500:
		return CategoryBadRequest
	default:
		return CategoryServerError
	}
}

// TransportError is a non-success round trip.
type TransportError struct {
	Category Category
	// Status is the backend status code, when the backend has one.
	Status  int
	Message string
	Err     error
}

// NewTransportError builds a TransportError for the given category.
func NewTransportError(category Category, status int, message string, err error) *TransportError {
	return &TransportError{Category: category, Status: status, Message: message, Err: err}
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Category, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Category, msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for the error's category.
func (e *TransportError) Is(target error) bool {
	switch e.Category {
	case CategoryBadRequest:
		return target == ErrBadRequest
	case CategoryNotFound:
		return target == ErrNotFound
	case CategoryConflict:
		return target == ErrConflict
	case CategoryServerError:
		return target == ErrServerError
	}
	return false
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// SchemaError is a programming error in a schema declaration or in the
// values assigned to a declared property.
type SchemaError struct {
	Schema   string
	Property string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("schema %q: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("schema %q, property %q: %v", e.Schema, e.Property, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// CoercionFailure describes a wire value that could not be converted to its
// declared domain type during hydration. It is never returned to callers of
// hydrating operations; it is handed to the Graph's CoercionHook instead.
type CoercionFailure struct {
	Schema   string
	Property string
	ID       ID
	Value    any
	Err      error
}

func (e *CoercionFailure) Error() string {
	return fmt.Sprintf("coerce %q.%q (element %q) from %v: %v", e.Schema, e.Property, e.ID, e.Value, e.Err)
}

func (e *CoercionFailure) Unwrap() error {
	return e.Err
}
