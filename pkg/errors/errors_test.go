package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(CodeAuthenticationMissing, MessageAccessTokenMissing),
			want: "AUTH_004: Access token missing",
		},
		{
			name: "with cause",
			err:  Wrap(errors.New("connection refused"), CodeAuthenticationUserInfo, "user info request failed"),
			want: "AUTH_006: user info request failed: connection refused",
		},
		{
			name: "nested coded cause",
			err:  Wrap(New(CodeAuthenticationKey, "unknown kid"), CodeAuthenticationInvalid, "token verification failed"),
			want: "AUTH_003: token verification failed: AUTH_005: unknown kid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := Wrap(cause, CodeAuthenticationKey, "jwks fetch failed")

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, New(CodeInternal, "x").Unwrap())
}

func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidationRequired, http.StatusBadRequest},
		{CodeAuthenticationMissing, http.StatusUnauthorized},
		{CodeAuthenticationExpired, http.StatusUnauthorized},
		{CodeAuthenticationUserInfo, http.StatusUnauthorized},
		{CodeAuthorization, http.StatusForbidden},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternalConfiguration, http.StatusInternalServerError},
		{Code("WEIRD"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus())
		})
	}
}

func TestError_WithDetailDoesNotMutate(t *testing.T) {
	t.Parallel()
	orig := New(CodeAuthenticationKey, "missing key")
	withKid := orig.WithDetail("kid", "key-1")

	assert.Nil(t, orig.Details)
	assert.Equal(t, "key-1", withKid.Details["kid"])
	assert.Equal(t, orig.Code, withKid.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("eof"), CodeAuthenticationUserInfo, "decode failed").WithDetail("status", 200)

	assert.Equal(t, "AUTH_006: decode failed: eof", fmt.Sprintf("%v", err))
	assert.Equal(t, `"AUTH_006: decode failed: eof"`, fmt.Sprintf("%q", err))
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, `Code: "AUTH_006"`)
	assert.Contains(t, detailed, "Details: map[status:200]")
	assert.Contains(t, detailed, "Cause: eof")
}

func TestCode_Category(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "AUTH", CodeAuthenticationKey.Category())
	assert.Equal(t, "AUTHZ", CodeAuthorization.Category())
	assert.Equal(t, "VAL", CodeValidationFormat.Category())
	assert.Equal(t, "NOUNDERSCORE", Code("NOUNDERSCORE").Category())
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "x %d", 1))
}

func TestMissingToken(t *testing.T) {
	t.Parallel()
	err := MissingToken()

	assert.Equal(t, "Access token missing", err.Message)
	assert.True(t, IsMissingToken(err))
	assert.True(t, IsAuthentication(err))
}

func TestKeyResolution(t *testing.T) {
	t.Parallel()
	cause := errors.New("kid not found")
	err := KeyResolution(cause, "key-123")

	assert.Equal(t, CodeAuthenticationKey, err.Code)
	assert.Equal(t, "key-123", err.Details["kid"])
	assert.ErrorIs(t, err, cause)
}

func TestChecks(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("outer: %w", New(CodeAuthenticationInvalid, "bad signature"))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeAuthenticationInvalid, e.Code)
	assert.Equal(t, CodeAuthenticationInvalid, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, CodeAuthenticationInvalid))
	assert.True(t, IsAuthentication(wrapped))
	assert.False(t, IsConfiguration(wrapped))

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, Code(""), GetCode(nil))
	assert.False(t, IsAuthentication(nil))
}

func TestIsConfiguration(t *testing.T) {
	t.Parallel()
	assert.True(t, IsConfiguration(Configuration("bad")))
	assert.True(t, IsConfiguration(Configurationf("property %q", "x")))
	assert.True(t, IsConfiguration(New(CodeValidationRequired, "missing")))
	assert.False(t, IsConfiguration(MissingToken()))
	assert.False(t, IsConfiguration(errors.New("plain")))
}
