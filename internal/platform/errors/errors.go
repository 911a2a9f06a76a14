package errors

import stderrors "errors"

// Domain is the error domain for Storyweft errors.
const Domain = "github.com/storyweft/storyweft"

// Error carries a machine-readable code alongside the internal message.
// Message is what operators see in logs; Metadata holds extra key/value
// context; Cause preserves the wrapped error chain.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two domain errors by code, so errors.Is can compare against
// a sentinel like New(CodeNotFound, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// New creates a domain error with a code and internal message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches an underlying cause to a new domain error.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithMetadata attaches key/value context to a new domain error.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	e := New(code, message)
	e.Metadata = metadata
	return e
}

// WrapWithMetadata combines Wrap and WithMetadata.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	e := Wrap(code, message, cause)
	e.Metadata = metadata
	return e
}

// CodeOf finds the first domain error in err's chain and returns its code,
// or CodeUnknown when the chain holds none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
