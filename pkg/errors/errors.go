// Package errors defines the coded error type shared by every package in the
// OIDC resource server SDK.
//
// Each error carries a machine-readable [Code] of the form CATEGORY_NNN. All
// failures raised while authenticating a request belong to the AUTH category
// and map to HTTP 401; configuration problems detected at construction time
// belong to the INT or VAL categories and are never produced per request.
//
// # Usage
//
//	err := errors.New(errors.CodeAuthenticationMissing, errors.MessageAccessTokenMissing)
//
//	if errors.IsAuthentication(err) {
//	    w.WriteHeader(http.StatusUnauthorized)
//	}
//
// The package is conventionally imported under the alias sserr to avoid
// shadowing the standard library errors package.
package errors

import (
	"fmt"
	"net/http"
)

// Error is a structured error with a code, a message safe to show callers,
// and an optional cause. Values are not modified after creation.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_004").
	Code Code

	// Message is the human-readable error message. It must not contain
	// tokens, secrets, or key material.
	Message string

	// Cause is the underlying error, exposed through Unwrap.
	Cause error

	// Details holds additional structured context (e.g., the key ID that
	// could not be resolved).
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is and errors.As can walk
// the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code matching the error category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a copy of the error with key set to value in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// Format implements fmt.Formatter. %+v prints the code, message, details
// and cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
