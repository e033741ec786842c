package errors

import (
	"fmt"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err with a code and message. Wrap returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a code and formatted message. Wrapf returns nil if
// err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// MissingToken returns the error reported when a request carries no access
// token. Its message is always [MessageAccessTokenMissing].
func MissingToken() *Error {
	return New(CodeAuthenticationMissing, MessageAccessTokenMissing)
}

// KeyResolution wraps a failure to resolve the signing key identified by
// kid.
func KeyResolution(err error, kid string) *Error {
	e := &Error{
		Code:    CodeAuthenticationKey,
		Message: "signing key could not be resolved",
		Cause:   err,
	}
	return e.WithDetail("kid", kid)
}

// Configuration creates a configuration error. Configuration errors are
// raised while constructing components, never while serving requests.
func Configuration(message string) *Error {
	return New(CodeInternalConfiguration, message)
}

// Configurationf creates a configuration error with a formatted message.
func Configurationf(format string, args ...any) *Error {
	return Newf(CodeInternalConfiguration, format, args...)
}
