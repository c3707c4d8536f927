package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure. Kinds cross package boundaries: the
// stdio layer produces transport/timeout faults, discovery produces protocol
// faults, and the router maps each kind to an HTTP status and error envelope.
type Kind string

const (
	// KindTransport indicates a broken pipe or unexpected subprocess exit.
	KindTransport Kind = "transport_error"
	// KindProtocol indicates a malformed or unexpected message, isolated to
	// that message.
	KindProtocol Kind = "protocol_error"
	// KindToolInvocation indicates the subprocess returned a JSON-RPC error
	// for a specific call.
	KindToolInvocation Kind = "tool_invocation_error"
	// KindTimeout indicates no response arrived within the call deadline.
	KindTimeout Kind = "timeout"
	// KindSchemaValidation indicates a request body failed the tool's
	// declared input schema.
	KindSchemaValidation Kind = "schema_validation_error"
	// KindUnavailable indicates the supervised subprocess is not ready to
	// accept calls.
	KindUnavailable Kind = "unavailable"
)

// Error carries a failure kind alongside a human readable message and an
// optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a kind and message, preserving the chain for
// errors.Is/errors.As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf walks the error chain and reports the kind of the first *Error
// found.
func KindOf(err error) (Kind, bool) {
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Kind, true
	}
	return "", false
}

// Is reports whether err (or any error it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	actual, ok := KindOf(err)
	return ok && actual == kind
}
