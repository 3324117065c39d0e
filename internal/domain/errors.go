// Package domain defines core types, interfaces, and errors for the loan pipeline.
package domain

import (
	"errors"
	"fmt"
)

// Error kinds reported to the invoker. They name the failing stage's error
// class and are printed verbatim on standard error.
const (
	KindSourceNotFound       = "SourceNotFound"
	KindInvalidConfiguration = "InvalidConfiguration"
	KindMirrorUpload         = "MirrorUploadError"
	KindLoadFailure          = "LoadFailure"
	KindEmptyLayer           = "EmptyLayer"
	KindDuplicateKeys        = "DuplicateKeys"
	KindInternal             = "InternalError"
)

// KindedError is implemented by every typed pipeline error.
type KindedError interface {
	error
	Kind() string
	Retryable() bool
}

// SourceNotFoundError indicates the requested file, directory or pattern matched nothing.
type SourceNotFoundError struct {
	Message string
}

func (e *SourceNotFoundError) Error() string { return e.Message }

// Kind implements KindedError.
func (e *SourceNotFoundError) Kind() string { return KindSourceNotFound }

// Retryable implements KindedError.
func (e *SourceNotFoundError) Retryable() bool { return false }

// InvalidConfigurationError indicates contradictory or missing inputs.
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string { return e.Message }

// Kind implements KindedError.
func (e *InvalidConfigurationError) Kind() string { return KindInvalidConfiguration }

// Retryable implements KindedError.
func (e *InvalidConfigurationError) Retryable() bool { return false }

// MirrorUploadError indicates the remote copy of a snapshot failed. The local
// snapshot is untouched and can be mirrored again.
type MirrorUploadError struct {
	Message string
	Err     error
}

func (e *MirrorUploadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *MirrorUploadError) Unwrap() error { return e.Err }

// Kind implements KindedError.
func (e *MirrorUploadError) Kind() string { return KindMirrorUpload }

// Retryable implements KindedError.
func (e *MirrorUploadError) Retryable() bool { return true }

// LoadFailureError indicates the store rejected a load. The destination table
// keeps its previous contents.
type LoadFailureError struct {
	Message string
	Err     error
}

func (e *LoadFailureError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LoadFailureError) Unwrap() error { return e.Err }

// Kind implements KindedError.
func (e *LoadFailureError) Kind() string { return KindLoadFailure }

// Retryable implements KindedError.
func (e *LoadFailureError) Retryable() bool { return true }

// EmptyLayerError is the quality gate rejection for a layer below its minimum row count.
type EmptyLayerError struct {
	Layer   Layer
	Table   string
	Count   int64
	Minimum int64
}

func (e *EmptyLayerError) Error() string {
	return fmt.Sprintf("%s layer table %s has %d rows, minimum is %d", e.Layer, e.Table, e.Count, e.Minimum)
}

// Kind implements KindedError.
func (e *EmptyLayerError) Kind() string { return KindEmptyLayer }

// Retryable implements KindedError.
func (e *EmptyLayerError) Retryable() bool { return false }

// ErrSourceNotFound creates a SourceNotFoundError with a formatted message.
func ErrSourceNotFound(format string, args ...interface{}) *SourceNotFoundError {
	return &SourceNotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidConfiguration creates an InvalidConfigurationError with a formatted message.
func ErrInvalidConfiguration(format string, args ...interface{}) *InvalidConfigurationError {
	return &InvalidConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ErrMirrorUpload creates a MirrorUploadError wrapping cause.
func ErrMirrorUpload(cause error, format string, args ...interface{}) *MirrorUploadError {
	return &MirrorUploadError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// ErrLoadFailure creates a LoadFailureError wrapping cause.
func ErrLoadFailure(cause error, format string, args ...interface{}) *LoadFailureError {
	return &LoadFailureError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// ErrorKind returns the error class of err, or KindInternal for untyped errors.
func ErrorKind(err error) string {
	var k KindedError
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsRetryable reports whether re-running the failed step as a whole may succeed.
// Untyped errors are treated as transient.
func IsRetryable(err error) bool {
	var k KindedError
	if errors.As(err, &k) {
		return k.Retryable()
	}
	return true
}

// DuplicateKeysError is raised by the quality gate only when it is configured
// to fail on business-key duplicates.
type DuplicateKeysError struct {
	Layer      Layer
	Table      string
	Key        string
	Duplicates int64
	Maximum    int64
}

func (e *DuplicateKeysError) Error() string {
	return fmt.Sprintf("%s layer table %s has %d duplicate %s values, maximum is %d",
		e.Layer, e.Table, e.Duplicates, e.Key, e.Maximum)
}

// Kind implements KindedError.
func (e *DuplicateKeysError) Kind() string { return KindDuplicateKeys }

// Retryable implements KindedError.
func (e *DuplicateKeysError) Retryable() bool { return false }

// NotFoundError indicates a ledger record was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
