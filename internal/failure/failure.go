// Package failure defines the machine-readable error kinds surfaced by the
// fetch workflows and the HTTP/MCP transports.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable identifier clients can switch on.
type Kind string

const (
	SessionNotFound          Kind = "SessionNotFound"
	SessionExpired           Kind = "SessionExpired"
	SessionConflict          Kind = "SessionConflict"
	AllocationFailure        Kind = "AllocationFailure"
	InvalidRequest           Kind = "InvalidRequest"
	TimeoutWaitingForElement Kind = "TimeoutWaitingForElement"
	TimeoutWaitingForResult  Kind = "TimeoutWaitingForResult"
	SelectionNotFound        Kind = "SelectionNotFound"
	CaseTypeNotFound         Kind = "CaseTypeNotFound"
	CauseListNotFound        Kind = "CauseListNotFound"
	ResultNotFound           Kind = "ResultNotFound"
	UnexpectedPage           Kind = "UnexpectedPage"
	DownloadFailure          Kind = "DownloadFailure"
	RenderFailure            Kind = "RenderFailure"
	PathValidationFailure    Kind = "PathValidationFailure"
	Internal                 Kind = "Internal"
)

// Error carries a Kind, an optional form field, and the wrapped cause.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so callers can write errors.Is(err, failure.New(kind, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

// New builds an Error without a cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to a lower-level error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ForField builds an Error naming the form field that could not be satisfied.
func ForField(kind Kind, field string, err error) *Error {
	return &Error{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf("%s: no selectable option for %s", kind, field),
		Err:     err,
	}
}

// KindOf extracts the Kind of err, defaulting to Internal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// FieldOf returns the field carried by err, if any.
func FieldOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

// Public returns the message safe to show to an end user. Wrapped causes stay in the logs.
func Public(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message != "" {
			return fe.Message
		}
		return string(fe.Kind)
	}
	return "internal error"
}

// HTTPStatus maps a Kind onto a response code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case SessionNotFound, SessionExpired, InvalidRequest, SelectionNotFound,
		CaseTypeNotFound, PathValidationFailure:
		return http.StatusBadRequest
	case ResultNotFound, CauseListNotFound:
		return http.StatusNotFound
	case SessionConflict:
		return http.StatusConflict
	case TimeoutWaitingForElement, TimeoutWaitingForResult:
		return http.StatusGatewayTimeout
	case AllocationFailure:
		return http.StatusServiceUnavailable
	case UnexpectedPage, DownloadFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
