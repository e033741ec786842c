package oidc

import (
	"context"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const (
	authenticationKey contextKey = iota
)

// ContextWithAuthentication returns a new context carrying authn. The
// [Guard] calls it after a successful resolution.
func ContextWithAuthentication(ctx context.Context, authn *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, authn)
}

// AuthenticationFromContext retrieves the Authentication attached by the
// guard. It never returns a nil Authentication with true.
func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	authn, ok := ctx.Value(authenticationKey).(*Authentication)
	return authn, ok && authn != nil
}

// MustAuthenticationFromContext is like [AuthenticationFromContext] but
// panics when the context carries no Authentication. Use it only behind
// the guard.
func MustAuthenticationFromContext(ctx context.Context) *Authentication {
	authn, ok := AuthenticationFromContext(ctx)
	if !ok {
		panic("oidc: no authentication in context; ensure the guard is configured")
	}
	return authn
}
