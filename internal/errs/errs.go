// Package errs defines the coded errors services return and the HTTP
// statuses they map to.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, client-visible error code.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"
	Unauthenticated    Code = "unauthenticated"
	PermissionDenied   Code = "permission_denied"
	NotFound           Code = "not_found"
	AlreadyExists      Code = "already_exists"
	FailedPrecondition Code = "failed_precondition"
	Gone               Code = "gone"
	ResourceExhausted  Code = "resource_exhausted"
	RateLimited        Code = "rate_limited"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

var statusByCode = map[Code]int{
	InvalidArgument:    http.StatusBadRequest,
	Unauthenticated:    http.StatusUnauthorized,
	PermissionDenied:   http.StatusForbidden,
	NotFound:           http.StatusNotFound,
	AlreadyExists:      http.StatusConflict,
	FailedPrecondition: http.StatusConflict,
	Gone:               http.StatusGone,
	ResourceExhausted:  http.StatusRequestEntityTooLarge,
	RateLimited:        http.StatusTooManyRequests,
	Unavailable:        http.StatusServiceUnavailable,
	Internal:           http.StatusInternalServerError,
}

const internalMessage = "internal error"

// Error pairs a Code and a client-safe Message with an optional cause. The
// cause is for logs only and never reaches a response.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and client message to cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func as(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded, true
	}
	return nil, false
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	coded, ok := as(err)
	return ok && coded.Code == code
}

// CodeOf returns err's code. Uncoded errors, and nil, are Internal.
func CodeOf(err error) Code {
	if coded, ok := as(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf returns the client-safe message for err. Uncoded errors become
// "internal error" so driver errors and file paths stay out of responses.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := as(err); ok && coded.Message != "" {
		return coded.Message
	}
	return internalMessage
}

// HTTPStatus maps code to an HTTP status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
