// Package errs maps domain failures onto coded errors for the HTTP API and
// the CLI.
package errs

import (
	"context"
	"errors"
	"net/http"

	"clientcore/pkg/domain"
)

// Code is an application error code.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	NotFound        Code = "not_found"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Classify returns err as a coded error. Errors that already carry a code are
// returned unchanged; domain errors get the matching code and their own
// message; anything else is internal.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	var (
		ve *domain.ValidationError
		mr *domain.MalformedRowError
		pe *domain.PersistenceError
		ce *domain.CorruptStoreError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &mr):
		return Wrap(InvalidArgument, err.Error(), err)
	case errors.Is(err, domain.ErrClientNotFound):
		return Wrap(NotFound, err.Error(), err)
	case errors.As(err, &pe):
		return Wrap(Unavailable, "client storage unavailable", err)
	case errors.As(err, &ce):
		return Wrap(Internal, "stored client data is corrupt", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(Unavailable, "request cancelled", err)
	}
	return &Error{Code: Internal, Err: err}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(Classify(err), &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf returns a user-facing message. Unclassified errors read
// "internal error" so driver details and paths are not leaked.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(Classify(err), &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
