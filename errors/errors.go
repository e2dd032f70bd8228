package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is a wrapper around errno codes, with a customizable error
// message. Two DriverErrors are considered equivalent by [errors.Is] if they
// carry the same errno, regardless of their messages.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is lets [errors.Is] match on the error code alone.
func (e driverError) Is(target error) bool {
	other, ok := target.(DriverError)
	return ok && other.Errno() == e.errno
}

// New creates a new [DriverError] with a default message derived from the
// error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

// NewFromError creates a [DriverError] that wraps another error. Both the new
// error code and `originalError` (and anything it wraps) remain visible to
// [errors.Is] and [errors.As].
func NewFromError(errnoCode Errno, originalError error) DriverError {
	if originalError == nil {
		return New(errnoCode)
	}

	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: multierror.Append(New(errnoCode), originalError),
	}
}

// NewWithMessage creates a new DriverError from an error code with a custom
// message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// Newf is NewWithMessage with printf-style formatting.
func Newf(errnoCode Errno, format string, args ...any) DriverError {
	return NewWithMessage(errnoCode, fmt.Sprintf(format, args...))
}

// Wrap annotates `err` with context. If `err` already carries an error code
// it's preserved, otherwise the result is an [EIO] error. nil in, nil out.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	context := fmt.Sprintf(format, args...)
	code := ErrnoOf(err)
	if code == EOK {
		code = EIO
	}
	return driverError{
		errno:         code,
		message:       fmt.Sprintf("%s: %s", context, err.Error()),
		originalError: err,
	}
}

// Combine merges any number of errors into one, skipping nils. It returns nil
// if every argument is nil, and the error itself if exactly one isn't.
func Combine(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	if result == nil {
		return nil
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result
}

// ErrnoOf returns the error code of the first [DriverError] in err's chain, or
// [EOK] if there isn't one (including when err is nil).
func ErrnoOf(err error) Errno {
	var driverErr DriverError
	if stderrors.As(err, &driverErr) {
		return driverErr.Errno()
	}
	return EOK
}

// Is is [errors.Is] from the standard library, re-exported so callers don't
// need to import both packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is [errors.As] from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
