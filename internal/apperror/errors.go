// Package apperror defines the structured error type used across the engine.
package apperror

import (
	"fmt"
	"net/http"
)

// Kind identifies the stable error codes listed in spec.md §7. Callers switch
// on Kind, never on Error() text.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindCyclicDependencies  Kind = "CyclicDependencies"
	KindUnreachableStep     Kind = "UnreachableStep"
	KindDuplicateStepId     Kind = "DuplicateStepId"
	KindInvalidEntryExit    Kind = "InvalidEntryExit"
	KindUnknownStepKind     Kind = "UnknownStepKind"
	KindIncompatibleConfig  Kind = "IncompatibleStepConfig"
	KindVersionConflict     Kind = "VersionConflict"
	KindValidationFailed    Kind = "ValidationFailed"
	KindAIResponseInvalid   Kind = "AIResponseInvalid"
	KindRateLimited         Kind = "RateLimited"
	KindTimeout             Kind = "Timeout"
	KindTransient           Kind = "Transient"
	KindTerminalState       Kind = "TerminalState"
	KindCancellationTimeout Kind = "CancellationTimedOut"
	KindInternal            Kind = "Internal"
)

// statusCodes maps each Kind to the HTTP status the boundary layer reports it as.
var statusCodes = map[Kind]int{
	KindNotFound:            http.StatusNotFound,
	KindCyclicDependencies:  http.StatusBadRequest,
	KindUnreachableStep:     http.StatusBadRequest,
	KindDuplicateStepId:     http.StatusBadRequest,
	KindInvalidEntryExit:    http.StatusBadRequest,
	KindUnknownStepKind:     http.StatusBadRequest,
	KindIncompatibleConfig:  http.StatusBadRequest,
	KindVersionConflict:     http.StatusConflict,
	KindValidationFailed:    http.StatusUnprocessableEntity,
	KindAIResponseInvalid:   http.StatusBadGateway,
	KindRateLimited:         http.StatusTooManyRequests,
	KindTimeout:             http.StatusRequestTimeout,
	KindTransient:           http.StatusBadGateway,
	KindTerminalState:       http.StatusConflict,
	KindCancellationTimeout: http.StatusInternalServerError,
	KindInternal:            http.StatusInternalServerError,
}

// retryableKinds enumerates the Kinds spec.md §7 calls retryable by default.
var retryableKinds = map[Kind]bool{
	KindVersionConflict:  true,
	KindValidationFailed: false,
	KindAIResponseInvalid: true,
	KindRateLimited:      true,
	KindTimeout:          true,
	KindTransient:        true,
}

// Error is the structured error type threaded through every component. It
// carries enough information for the boundary layer to build an
// ErrorEnvelope{code,message,retryable,details} without re-deriving anything.
type Error struct {
	Kind       Kind
	Message    string
	Details    string
	Retryable  bool
	StatusCode int
	Cause      error
}

// New creates an Error of the given kind with the default retryability for
// that kind (see retryableKinds).
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Retryable:  retryableKinds[kind],
		StatusCode: statusCodeFor(kind),
	}
}

// Newf is New with fmt.Sprintf-style formatting of message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind that records cause as the
// underlying error (retrievable via errors.Unwrap).
func Wrap(cause error, kind Kind, message string) *Error {
	err := New(kind, message)
	err.Cause = cause
	return err
}

// Wrapf is Wrap with fmt.Sprintf-style formatting of message.
func Wrapf(cause error, kind Kind, format string, args ...interface{}) *Error {
	return Wrap(cause, kind, fmt.Sprintf(format, args...))
}

func statusCodeFor(kind Kind) int {
	if code, ok := statusCodes[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WithDetails attaches free-form details and returns the receiver for chaining.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithDetailsf is WithDetails with fmt.Sprintf-style formatting.
func (e *Error) WithDetailsf(format string, args ...interface{}) *Error {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithRetryable overrides the default retryability for this Kind. Used when a
// caller knows a specific occurrence is (or isn't) worth retrying regardless
// of the Kind's default, e.g. a Failed(kind, retryable) returned by an
// executor.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return appErr.Kind == kind
}

// Retryable reports whether err should be absorbed by the retry policy. A
// non-*Error is treated as non-retryable.
func Retryable(err error) bool {
	appErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return appErr.Retryable
}

// Convenience constructors for the most common error kinds.

func NewNotFound(resource string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

func NewValidationFailed(message string) *Error {
	return New(KindValidationFailed, message)
}

func NewVersionConflict(executionID string, expected, current int64) *Error {
	return Newf(KindVersionConflict, "context commit for execution %s expected version %d, found %d", executionID, expected, current)
}

func NewTerminalState(executionID string, status string) *Error {
	return Newf(KindTerminalState, "execution %s is already terminal (%s)", executionID, status)
}

func NewTimeout(operation string) *Error {
	return Newf(KindTimeout, "operation timed out: %s", operation)
}

func NewRateLimited(provider string) *Error {
	return Newf(KindRateLimited, "rate limit exceeded for provider %s", provider)
}
