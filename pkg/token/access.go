package token

import (
	"context"
	"slices"
	"strings"
)

// AccessTokenClaims is the caller classification derived from a verified
// access token.
type AccessTokenClaims struct {
	// ClientID is the sub claim, or empty when the token has none.
	ClientID string

	// Scopes are the distinct entries of the space-separated scope claim,
	// in their original order.
	Scopes []string
}

// HasScope reports whether scope was granted.
func (c AccessTokenClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ParseAccessToken derives [AccessTokenClaims] from verified claims. It
// never fails: a missing sub yields an empty ClientID and a missing or
// empty scope yields no scopes.
func ParseAccessToken(claims VerifiedClaims) AccessTokenClaims {
	var out AccessTokenClaims
	out.ClientID, _ = claims.String("sub")

	scope, _ := claims.String("scope")
	for _, s := range strings.Split(scope, " ") {
		if s != "" && !slices.Contains(out.Scopes, s) {
			out.Scopes = append(out.Scopes, s)
		}
	}
	if out.Scopes == nil {
		out.Scopes = []string{}
	}
	return out
}

// AccessTokenVerifier verifies an access token and returns its claims.
// [*Verifier] is the production implementation.
type AccessTokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (AccessTokenClaims, error)
}

var _ AccessTokenVerifier = (*Verifier)(nil)

// AccessTokenVerifierFunc adapts a function to [AccessTokenVerifier].
type AccessTokenVerifierFunc func(ctx context.Context, raw string) (AccessTokenClaims, error)

// VerifyAccessToken calls f(ctx, raw).
func (f AccessTokenVerifierFunc) VerifyAccessToken(ctx context.Context, raw string) (AccessTokenClaims, error) {
	return f(ctx, raw)
}
