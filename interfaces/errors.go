package interfaces

import "errors"

// ErrorKind is the machine-readable error classification carried in the
// "error" field of a failure envelope. The string values are the wire
// representation and must match the host agents exactly.
type ErrorKind string

const (
	KindParseError       ErrorKind = "PARSE_ERROR"
	KindInvalidOperation ErrorKind = "INVALID_OPERATION"
	KindInvalidParameter ErrorKind = "INVALID_PARAMETER"
	KindNotAuthenticated ErrorKind = "NOT_AUTHENTICATED"
	KindSessionExpired   ErrorKind = "SESSION_EXPIRED"
	KindSecretNotFound   ErrorKind = "SECRET_NOT_FOUND"
	KindCapacityExceeded ErrorKind = "CAPACITY_EXCEEDED"
	KindHardwareError    ErrorKind = "HARDWARE_ERROR"
	KindCryptoError      ErrorKind = "CRYPTO_ERROR"
	KindPINInvalid       ErrorKind = "PIN_INVALID"
	KindPINLocked        ErrorKind = "PIN_LOCKED"
	KindInternalError    ErrorKind = "INTERNAL_ERROR"
)

// Error is a protocol error with a wire kind and a human-readable detail.
// All errors crossing the engine boundary are funneled into this type before
// serialization; anything else is reported as INTERNAL_ERROR.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// NewError creates a protocol error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError creates a protocol error of the given kind wrapping a cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return string(e.Kind) + ": " + e.Msg
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the human-readable message for the response envelope,
// falling back to the kind name when no detail was recorded.
func (e *Error) Detail() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}

// KindOf classifies an arbitrary error into a wire kind. Errors that are not
// protocol errors indicate a defect and classify as INTERNAL_ERROR.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternalError
}
