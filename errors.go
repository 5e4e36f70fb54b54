// Package slfs defines the shared vocabulary of the file system emulator:
// the error taxonomy, the device geometry, and the on-disk layout constants.
package slfs

import "fmt"

// FsError is the error type returned by the fallible operations of this
// module; fs.Check, FileSystem.Sync and FileSystem.Unmount instead aggregate
// their failures into a multierror value. The base values are defined below;
// WithMessage and Wrap derive new errors that still match their base value
// with [errors.Is].
type FsError interface {
	error
	WithMessage(message string) FsError
	Wrap(err error) FsError
}

// Error is a bare error kind. The constants below form the full taxonomy;
// nothing else in the module invents new kinds.
type Error string

const ErrExists = Error("File exists")
const ErrInvalidArgument = Error("Invalid argument")
const ErrNameTooLong = Error("File name too long")
const ErrNoSpace = Error("No space left on device")
const ErrNotFound = Error("No such file or directory")
const ErrOutOfRange = Error("Numerical argument out of domain")
const ErrReadWrite = Error("Input/output error")
const ErrSizeMismatch = Error("Data length does not match block size")
const ErrTooManyOpenFiles = Error("Too many open files in system")
const ErrVersionMismatch = Error("Wrong medium type")

func (e Error) Error() string {
	return string(e)
}

func (e Error) WithMessage(message string) FsError {
	return wrappedError{
		kind:    e,
		message: fmt.Sprintf("%s: %s", string(e), message),
		cause:   e,
	}
}

func (e Error) Wrap(err error) FsError {
	return wrappedError{
		kind:    e,
		message: fmt.Sprintf("%s: %s", string(e), err.Error()),
		cause:   err,
	}
}

// -----------------------------------------------------------------------------

// wrappedError is an error kind annotated with detail. It matches both its
// kind and its cause under [errors.Is].
type wrappedError struct {
	kind    Error
	message string
	cause   error
}

func (e wrappedError) Error() string {
	return e.message
}

func (e wrappedError) Is(target error) bool {
	return target == e.kind
}

func (e wrappedError) Unwrap() error {
	return e.cause
}

func (e wrappedError) WithMessage(message string) FsError {
	return wrappedError{
		kind:    e.kind,
		message: fmt.Sprintf("%s: %s", e.message, message),
		cause:   e,
	}
}

func (e wrappedError) Wrap(err error) FsError {
	return wrappedError{
		kind:    e.kind,
		message: fmt.Sprintf("%s: %s", e.message, err.Error()),
		cause:   err,
	}
}
