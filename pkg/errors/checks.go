package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or an empty
// code if there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsAuthentication reports whether err is an authentication error
// (AUTH_xxx). Every request-time failure of the guard satisfies this.
//
// Example:
//
//	if errors.IsAuthentication(err) {
//	    // reply 401
//	}
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsMissingToken reports whether err signals that no access token was
// presented.
func IsMissingToken(err error) bool {
	return HasCode(err, CodeAuthenticationMissing)
}

// IsConfiguration reports whether err is a configuration error raised at
// construction time (INT_003 or any VAL_xxx code).
func IsConfiguration(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Code == CodeInternalConfiguration || e.Code.Category() == "VAL"
}
