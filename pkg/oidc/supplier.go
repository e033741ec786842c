package oidc

import (
	"strings"
)

const (
	// DefaultAccessTokenHeader is the header read by [HeaderTokenSupplier].
	DefaultAccessTokenHeader = "Authorization"

	// DefaultAccessTokenCookie is the cookie read by [CookieTokenSupplier].
	DefaultAccessTokenCookie = "access_token"

	bearerPrefix = "bearer "
)

// AccessTokenSupplier extracts the access token from a request. It
// returns false when the request carries none.
type AccessTokenSupplier interface {
	AccessToken(req Request) (string, bool)
}

// AccessTokenSupplierFunc adapts a function to [AccessTokenSupplier].
type AccessTokenSupplierFunc func(req Request) (string, bool)

// AccessToken calls f(req).
func (f AccessTokenSupplierFunc) AccessToken(req Request) (string, bool) {
	return f(req)
}

// HeaderTokenSupplier reads a bearer token from a request header. Values
// using another scheme or an empty token count as absent.
type HeaderTokenSupplier struct {
	// Name is the header name. Empty means [DefaultAccessTokenHeader].
	Name string
}

// AccessToken implements [AccessTokenSupplier].
func (s HeaderTokenSupplier) AccessToken(req Request) (string, bool) {
	name := s.Name
	if name == "" {
		name = DefaultAccessTokenHeader
	}
	token := ExtractBearerToken(req.Header(name))
	return token, token != ""
}

// CookieTokenSupplier reads the raw access token from a cookie.
type CookieTokenSupplier struct {
	// Name is the cookie name. Empty means [DefaultAccessTokenCookie].
	Name string
}

// AccessToken implements [AccessTokenSupplier].
func (s CookieTokenSupplier) AccessToken(req Request) (string, bool) {
	name := s.Name
	if name == "" {
		name = DefaultAccessTokenCookie
	}
	token, ok := req.Cookie(name)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// FirstTokenSupplier tries each supplier in order and returns the first
// token found.
func FirstTokenSupplier(suppliers ...AccessTokenSupplier) AccessTokenSupplier {
	return AccessTokenSupplierFunc(func(req Request) (string, bool) {
		for _, s := range suppliers {
			if token, ok := s.AccessToken(req); ok {
				return token, true
			}
		}
		return "", false
	})
}

// ExtractBearerToken returns the token from an Authorization header value
// of the form "Bearer <token>". The scheme is matched case-insensitively.
// It returns "" for any other format.
func ExtractBearerToken(header string) string {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
