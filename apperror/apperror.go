// Package apperror defines the failure taxonomy surfaced by the upload
// pipeline and the HTTP layer.
//
// Every failure carries a stable Kind. Callers branch with errors.Is against
// a Kind or with KindOf:
//
//	if errors.Is(err, apperror.Persistence) {
//		// remote objects were already compensated
//	}
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind classifies a failure.
type Kind string

const (
	Validation    Kind = "validation"
	Upload        Kind = "upload"
	UploadTimeout Kind = "upload_timeout"
	Dispatch      Kind = "dispatch"
	Persistence   Kind = "persistence"
	Compensation  Kind = "compensation"
	NotFound      Kind = "not_found"
	Unauthorized  Kind = "unauthorized"
	Forbidden     Kind = "forbidden"
	Conflict      Kind = "conflict"
	Internal      Kind = "internal"
)

// Error implements error so a bare Kind can be an errors.Is target.
func (k Kind) Error() string { return string(k) }

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured failure value.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a Kind by kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New builds an Error of the given kind and records the caller stack.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Stack: string(debug.Stack())}
}

func NewValidation(message string, fields ...FieldError) *Error {
	e := New(Validation, message, nil)
	e.Fields = fields
	return e
}

func NewUpload(message string, err error) *Error { return New(Upload, message, err) }

func NewUploadTimeout(message string, err error) *Error { return New(UploadTimeout, message, err) }

func NewDispatch(message string, err error) *Error { return New(Dispatch, message, err) }

func NewPersistence(message string, err error) *Error { return New(Persistence, message, err) }

func NewCompensation(message string, err error) *Error { return New(Compensation, message, err) }

func NewNotFound(message string) *Error { return New(NotFound, message, nil) }

func NewUnauthorized(message string) *Error { return New(Unauthorized, message, nil) }

func NewForbidden(message string) *Error { return New(Forbidden, message, nil) }

func NewConflict(message string, err error) *Error { return New(Conflict, message, err) }

func NewInternal(message string, err error) *Error { return New(Internal, message, err) }

// KindOf returns the outermost Kind in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As returns the outermost *Error in err's chain, wrapping foreign errors as Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternal("Something went wrong.", err)
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	e := As(err)
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Upload, UploadTimeout, Dispatch:
		return http.StatusBadGateway
	case Persistence:
		var inner *Error
		if errors.As(e.Err, &inner) && inner.Kind == Conflict {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Response is the JSON error envelope.
type Response struct {
	Success    bool         `json:"success"`
	StatusCode int          `json:"statusCode"`
	Kind       Kind         `json:"kind"`
	Message    string       `json:"message"`
	Errors     []FieldError `json:"errors"`
	Stack      string       `json:"stack,omitempty"`
}

// ToResponse renders err. The stack is included only when withStack is set.
func ToResponse(err error, withStack bool) Response {
	e := As(err)
	resp := Response{
		StatusCode: StatusCode(e),
		Kind:       e.Kind,
		Message:    e.Message,
		Errors:     e.Fields,
	}
	if resp.Errors == nil {
		resp.Errors = []FieldError{}
	}
	if withStack {
		resp.Stack = e.Stack
	}
	return resp
}
