// Package errors classifies failures across the index, fusion and search
// layers. Each sentinel maps to one HTTP status, one machine-readable code
// and one CLI exit code; AppError attaches a message to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotFound        = errors.New("not found")
	ErrIO              = errors.New("io failure")
	ErrUnavailable     = errors.New("unavailable")
	ErrTimeout         = errors.New("operation timed out")
)

type kind struct {
	sentinel error
	status   int
	code     string
	exit     int
}

// kinds is checked in order; the first sentinel err matches wins.
var kinds = []kind{
	{ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", 2},
	{ErrNotFound, http.StatusNotFound, "not_found", 3},
	{ErrInvalidState, http.StatusConflict, "invalid_state", 4},
	{ErrTimeout, http.StatusServiceUnavailable, "timeout", 5},
	{ErrUnavailable, http.StatusServiceUnavailable, "unavailable", 5},
	{ErrIO, http.StatusInternalServerError, "io", 1},
}

var internal = kind{status: http.StatusInternalServerError, code: "internal", exit: 1}

// AppError is a sentinel plus a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string { return e.Err.Error() + ": " + e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf reports a caller mistake such as a multi-token term or a
// non-positive limit.
func InvalidArgumentf(format string, args ...any) *AppError {
	return newf(ErrInvalidArgument, format, args...)
}

// InvalidStatef reports an operation against an index that has not been
// built or loaded.
func InvalidStatef(format string, args ...any) *AppError {
	return newf(ErrInvalidState, format, args...)
}

// NotFoundf reports a missing snapshot artifact or document.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrNotFound, format, args...)
}

// IOf wraps a persistence failure that is not a missing artifact. Both
// ErrIO and cause stay reachable through errors.Is.
func IOf(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w", newf(ErrIO, format, args...), cause)
}

func classify(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internal
}

// HTTPStatusCode is the response status for err; unclassified errors are
// 500.
func HTTPStatusCode(err error) int { return classify(err).status }

// Code is a stable identifier for err, e.g. "invalid_argument".
func Code(err error) string { return classify(err).code }

// ExitCode is the CLI exit status for err; nil is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return classify(err).exit
}
