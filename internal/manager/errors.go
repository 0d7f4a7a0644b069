package manager

import (
	"errors"

	"tensord/internal/engine"
)

// modelNotFoundError reports a model, base model or layer set missing from the catalog.
type modelNotFoundError struct{ msg string }

func (e modelNotFoundError) Error() string { return e.msg }

// ErrModelNotFound constructs a modelNotFoundError with msg verbatim.
func ErrModelNotFound(msg string) error { return modelNotFoundError{msg: msg} }

// IsModelNotFound reports whether the error indicates a missing catalog entry.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// integrityError reports a catalog/artifact disagreement: layer count,
// unmatched layer name, or checksum.
type integrityError struct{ msg string }

func (e integrityError) Error() string { return e.msg }

// IsIntegrity reports whether err is an integrity failure (return 409).
func IsIntegrity(err error) bool {
	var e integrityError
	return errors.As(err, &e)
}

// runtimeError wraps a failure inside the native runtime. The message is
// kept verbatim; the cause stays reachable through Unwrap.
type runtimeError struct {
	msg   string
	cause error
}

func (e runtimeError) Error() string { return e.msg }

func (e runtimeError) Unwrap() error { return e.cause }

// IsRuntime reports whether err came from a failed native load or forward pass.
func IsRuntime(err error) bool {
	var e runtimeError
	return errors.As(err, &e)
}

// deviceUnavailableError signals that a module could not be moved to the
// requested device.
type deviceUnavailableError struct {
	msg   string
	cause error
}

func (e deviceUnavailableError) Error() string { return e.msg }

func (e deviceUnavailableError) Unwrap() error { return e.cause }

// IsDeviceUnavailable reports whether err indicates a failed device move (return 503).
func IsDeviceUnavailable(err error) bool {
	var e deviceUnavailableError
	return errors.As(err, &e)
}

// IsDependencyUnavailable reports whether err indicates a runtime that is
// not built in or failed to initialise.
func IsDependencyUnavailable(err error) bool { return engine.IsDependencyUnavailable(err) }

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("manager closed")
