package oidc

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
	"github.com/StricklySoft/stricklysoft-oidc/pkg/token"
)

const (
	// DefaultOpenIDScope is the scope that marks a token as issued on
	// behalf of a user.
	DefaultOpenIDScope = "openid"

	// SystemName is the name given to client authentications.
	SystemName = "System"
)

// Authentication describes the caller of a request. It has exactly one of
// two shapes:
//
//   - user: ClientOnly is false, ID is the user subject, Authorities are
//     the user's roles and Claims is set
//   - client: ClientOnly is true, ID is the client identifier, Name is
//     [SystemName], Authorities are the token's scopes and Claims is nil
type Authentication struct {
	AccessToken string
	ID          string
	Name        string
	Authorities []string
	ClientOnly  bool
	Claims      *UserClaims
}

// HasAuthority reports whether authority was granted to the caller.
func (a *Authentication) HasAuthority(authority string) bool {
	return a != nil && slices.Contains(a.Authorities, authority)
}

// AuthenticationSupplier resolves the [Authentication] for an access token.
type AuthenticationSupplier interface {
	Authenticate(ctx context.Context, accessToken string) (*Authentication, error)
}

// AuthenticationSupplierFunc adapts a function to [AuthenticationSupplier].
type AuthenticationSupplierFunc func(ctx context.Context, accessToken string) (*Authentication, error)

// Authenticate calls f(ctx, accessToken).
func (f AuthenticationSupplierFunc) Authenticate(ctx context.Context, accessToken string) (*Authentication, error) {
	return f(ctx, accessToken)
}

// Resolver classifies a verified access token as a user or a client and
// builds the matching [Authentication].
type Resolver struct {
	verifier    token.AccessTokenVerifier
	users       UserClaimsSupplier
	openIDScope string
	tracer      trace.Tracer
	logger      *slog.Logger
}

var _ AuthenticationSupplier = (*Resolver)(nil)

// NewResolver creates a resolver. Recognised options are
// [WithOpenIDScope], [WithTracerProvider] and [WithLogger].
func NewResolver(verifier token.AccessTokenVerifier, users UserClaimsSupplier, opts ...Option) (*Resolver, error) {
	if verifier == nil {
		return nil, sserr.Configuration("oidc: access token verifier must not be nil")
	}
	if users == nil {
		return nil, sserr.Configuration("oidc: user claims supplier must not be nil")
	}
	o := buildOptions(opts)
	if o.openIDScope == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, `oidc: configuration property "openid-scope" must not be empty`)
	}
	return &Resolver{
		verifier:    verifier,
		users:       users,
		openIDScope: o.openIDScope,
		tracer:      o.tracer,
		logger:      o.logger,
	}, nil
}

// OpenIDScope returns the scope that selects the user branch.
func (r *Resolver) OpenIDScope() string {
	return r.openIDScope
}

// Authenticate verifies accessToken and resolves the caller. Only the
// presence of the OpenID scope selects the user branch; the token is
// always verified before user claims are requested. Errors from the
// verifier and the claims supplier are returned unchanged and no partial
// Authentication is ever returned.
func (r *Resolver) Authenticate(ctx context.Context, accessToken string) (*Authentication, error) {
	ctx, span := r.tracer.Start(ctx, "oidc.Authenticate")
	defer span.End()

	claims, err := r.verifier.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	if !claims.HasScope(r.openIDScope) {
		span.SetAttributes(
			attribute.Bool("oidc.client_only", true),
			attribute.String("oidc.client_id", claims.ClientID),
		)
		return &Authentication{
			AccessToken: accessToken,
			ID:          claims.ClientID,
			Name:        SystemName,
			Authorities: slices.Clone(claims.Scopes),
			ClientOnly:  true,
		}, nil
	}

	user, err := r.users.UserClaims(ctx, accessToken)
	if err != nil {
		finishSpan(span, err)
		r.logger.DebugContext(ctx, "oidc: user claims resolution failed",
			"client_id", claims.ClientID,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("oidc.client_only", false),
		attribute.String("oidc.subject", user.Sub),
	)
	return &Authentication{
		AccessToken: accessToken,
		ID:          user.Sub,
		Name:        user.Name,
		Authorities: slices.Clone(user.Roles),
		ClientOnly:  false,
		Claims:      user,
	}, nil
}
