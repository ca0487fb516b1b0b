// Package apperr carries typed business errors from services to the HTTP
// layer, which maps each Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	// KindValidation is a rule violated by otherwise well-formed input,
	// usually with FieldErrors as Details.
	KindValidation
	// KindConflict is a clash with stored state: duplicate number, overlap.
	KindConflict
	// KindForbidden is an authenticated caller acting outside its rights.
	KindForbidden
	KindBadRequest
	KindInternal
)

var kindNames = map[Kind]string{
	KindNotFound:   "not_found",
	KindValidation: "validation",
	KindConflict:   "conflict",
	KindForbidden:  "forbidden",
	KindBadRequest: "bad_request",
	KindInternal:   "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var kindStatus = map[Kind]int{
	KindNotFound:   http.StatusNotFound,
	KindValidation: http.StatusBadRequest,
	KindConflict:   http.StatusConflict,
	KindForbidden:  http.StatusForbidden,
	KindBadRequest: http.StatusBadRequest,
	KindInternal:   http.StatusInternalServerError,
}

// Error is a business error. Message is safe to show to API clients; Err
// and Op are for logs only.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is 500 for kinds without an explicit mapping.
func (e *Error) HTTPStatus() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap keeps err in the chain for logging while exposing only message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func BadRequest(message string) *Error { return New(KindBadRequest, message) }
func Internal(message string) *Error   { return New(KindInternal, message) }

// FieldErrors maps a field name to the messages raised on it.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Err returns nil when no field failed.
func (f FieldErrors) Err(message string) error {
	if len(f) == 0 {
		return nil
	}
	return Validation(message).WithDetails(f)
}

func ValidationField(field, message string) *Error {
	return Validation(message).WithDetails(FieldErrors{field: {message}})
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetKind is KindUnknown when the chain holds no *Error.
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
