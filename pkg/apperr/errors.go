// Package apperr defines the typed errors shared by the platform client,
// the tool registry, and the agent loop. Every failure crossing a component
// boundary carries a Kind so callers can decide whether to retry, surface
// the failure to the model, or abort the run.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers react to it.
type Kind string

const (
	// KindConfiguration marks missing or malformed configuration such as
	// absent credentials. Fatal before any I/O is attempted.
	KindConfiguration Kind = "configuration"

	// KindValidation marks locally detectable bad input: unknown tool
	// names, schema violations, missing session prerequisites.
	KindValidation Kind = "validation"

	// KindTransport marks network-level failures (timeout, DNS,
	// connection reset). The only retryable kind.
	KindTransport Kind = "transport"

	// KindPlatform marks a non-success status returned by the CAD
	// platform. Carries the status code and a body excerpt. Not retried:
	// the platform already evaluated the request.
	KindPlatform Kind = "platform_rejection"

	// KindModelProtocol marks an empty or unparsable language model
	// response.
	KindModelProtocol Kind = "model_protocol"
)

// Error is the application error carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Status  int    // HTTP status, set for platform rejections
	Body    string // response body excerpt, set for platform rejections
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that preserves the underlying cause for
// errors.Is/As chains.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Platform creates a platform rejection error carrying the response status
// and a body excerpt for diagnosis.
func Platform(status int, body string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindPlatform,
		Message: fmt.Sprintf(format, args...),
		Status:  status,
		Body:    body,
	}
}

// KindOf reports the kind carried by err, or the empty Kind when err does
// not wrap an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err represents a transient failure worth
// retrying with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}
