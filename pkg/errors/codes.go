package errors

// Code is a machine-readable error code. Codes follow the pattern
// CATEGORY_NNN and never change once assigned.
type Code string

// Error codes by category:
//
//	VAL_xxx     - configuration values failing validation
//	AUTH_xxx    - request authentication failures (401)
//	AUTHZ_xxx   - authorization failures (403)
//	INT_xxx     - internal and configuration errors (500)
//	UNAVAIL_xxx - a remote collaborator is unavailable (503)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required configuration value is
	// missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a value has an invalid format (e.g.,
	// a relative URI where an absolute one is required).
	CodeValidationFormat Code = "VAL_003"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the access token is past its
	// expiry.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the access token is malformed or
	// its signature does not verify.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationMissing indicates no access token was presented.
	CodeAuthenticationMissing Code = "AUTH_004"

	// CodeAuthenticationKey indicates the signing key for the token could
	// not be resolved from the key set.
	CodeAuthenticationKey Code = "AUTH_005"

	// CodeAuthenticationUserInfo indicates the user claims could not be
	// retrieved or decoded.
	CodeAuthenticationUserInfo Code = "AUTH_006"

	// CodeAuthenticationToken indicates a token could not be obtained from
	// the authorization server's token endpoint.
	CodeAuthenticationToken Code = "AUTH_007"

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates invalid or missing configuration.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a remote dependency is unavailable.
	CodeUnavailable Code = "UNAVAIL_001"
)

// MessageAccessTokenMissing is the message carried by errors with
// [CodeAuthenticationMissing].
const MessageAccessTokenMissing = "Access token missing"

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
