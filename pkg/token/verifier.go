// Package token verifies signed access tokens and extracts the access
// token claims used to classify a caller.
//
// [Verifier] checks a compact JWT's signature with a key resolved through a
// [jwks.KeySupplier] and validates exp and nbf. Only a successful
// verification produces [VerifiedClaims]; [ParseAccessToken] then derives
// the client identifier and granted scopes.
//
// # Errors
//
// Every failure is a *[sserr.Error] in the AUTH category:
//   - [sserr.CodeAuthenticationKey] when the signing key cannot be resolved
//   - [sserr.CodeAuthenticationExpired] when exp is in the past
//   - [sserr.CodeAuthenticationInvalid] for everything else (malformed
//     token, bad signature, disallowed algorithm, nbf in the future)
//
// Callers that only need to reject can test [sserr.IsAuthentication].
package token

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
	"github.com/StricklySoft/stricklysoft-oidc/pkg/jwks"
)

const tracerName = "github.com/StricklySoft/stricklysoft-oidc/pkg/token"

// maxTokenSize is the largest token accepted (8 KB).
const maxTokenSize = 8192

// DefaultAlgorithms lists the signature algorithms accepted unless
// [WithAlgorithms] narrows them. "none" is never accepted.
var DefaultAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
	"HS256", "HS384", "HS512",
}

// VerifiedClaims holds the claims of a token whose signature and validity
// window have been checked. Values are only produced by [Verifier.Verify].
type VerifiedClaims struct {
	claims map[string]any
}

// Get returns the claim named name.
func (c VerifiedClaims) Get(name string) (any, bool) {
	v, ok := c.claims[name]
	return v, ok
}

// String returns the claim named name if it is a string.
func (c VerifiedClaims) String(name string) (string, bool) {
	s, ok := c.claims[name].(string)
	return s, ok
}

// Map returns a copy of every claim.
func (c VerifiedClaims) Map() map[string]any {
	out := make(map[string]any, len(c.claims))
	for k, v := range c.claims {
		out[k] = v
	}
	return out
}

// Verifier validates compact signed tokens. It is safe for concurrent use.
type Verifier struct {
	keys   jwks.KeySupplier
	parser *jwt.Parser
	tracer trace.Tracer
	logger *slog.Logger
}

// Option configures a [Verifier].
type Option func(*verifierOptions)

type verifierOptions struct {
	algorithms        []string
	leeway            time.Duration
	now               func() time.Time
	requireExpiration bool
	issuer            string
	audience          string
	tracer            trace.Tracer
	logger            *slog.Logger
}

// WithAlgorithms restricts the accepted signature algorithms.
func WithAlgorithms(algs ...string) Option {
	return func(o *verifierOptions) {
		if len(algs) > 0 {
			o.algorithms = algs
		}
	}
}

// WithLeeway tolerates clock skew between this process and the issuer when
// checking exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(o *verifierOptions) { o.leeway = d }
}

// WithClock sets the time source for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(o *verifierOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// RequireExpiration rejects tokens without an exp claim.
func RequireExpiration() Option {
	return func(o *verifierOptions) { o.requireExpiration = true }
}

// WithIssuer rejects tokens whose iss claim differs from issuer.
func WithIssuer(issuer string) Option {
	return func(o *verifierOptions) { o.issuer = issuer }
}

// WithAudience rejects tokens whose aud claim does not contain audience.
func WithAudience(audience string) Option {
	return func(o *verifierOptions) { o.audience = audience }
}

// WithTracerProvider sets the provider used to create spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *verifierOptions) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the logger. Tokens are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *verifierOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewVerifier creates a Verifier resolving keys through keys.
func NewVerifier(keys jwks.KeySupplier, opts ...Option) (*Verifier, error) {
	if keys == nil {
		return nil, sserr.Configuration("token: key supplier must not be nil")
	}

	o := verifierOptions{
		algorithms: DefaultAlgorithms,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if slices.ContainsFunc(o.algorithms, func(a string) bool { return a == "" || a == "none" }) {
		return nil, sserr.Configuration("token: algorithm \"none\" is not permitted")
	}
	if o.leeway < 0 {
		return nil, sserr.Configuration("token: leeway must be non-negative")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(o.algorithms),
		jwt.WithLeeway(o.leeway),
		jwt.WithTimeFunc(o.now),
	}
	if o.requireExpiration {
		parserOpts = append(parserOpts, jwt.WithExpirationRequired())
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(o.audience))
	}

	return &Verifier{
		keys:   keys,
		parser: jwt.NewParser(parserOpts...),
		tracer: o.tracer,
		logger: o.logger,
	}, nil
}

// Verify checks raw and returns its claims. The signing key is requested
// from the key supplier using the token's kid and alg headers.
func (v *Verifier) Verify(ctx context.Context, raw string) (VerifiedClaims, error) {
	ctx, span := v.tracer.Start(ctx, "token.Verify")
	defer span.End()

	if raw == "" {
		err := sserr.New(sserr.CodeAuthenticationInvalid, "token: token must not be empty")
		finishSpan(span, err)
		return VerifiedClaims{}, err
	}
	if len(raw) > maxTokenSize {
		err := sserr.New(sserr.CodeAuthenticationInvalid, "token: token exceeds maximum size")
		finishSpan(span, err)
		return VerifiedClaims{}, err
	}

	mc := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(raw, mc, func(t *jwt.Token) (any, error) {
		header := jwks.Header{}
		header.KeyID, _ = t.Header["kid"].(string)
		header.Algorithm, _ = t.Header["alg"].(string)
		span.SetAttributes(
			attribute.String("token.kid", header.KeyID),
			attribute.String("token.alg", header.Algorithm),
		)
		return v.keys.Key(ctx, header)
	})
	if err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		v.logger.DebugContext(ctx, "token: verification failed",
			"code", classified.Code,
			"error", err,
		)
		return VerifiedClaims{}, classified
	}
	if !tok.Valid {
		err := sserr.New(sserr.CodeAuthenticationInvalid, "token: token is not valid")
		finishSpan(span, err)
		return VerifiedClaims{}, err
	}

	return VerifiedClaims{claims: map[string]any(mc)}, nil
}

// VerifyAccessToken verifies raw and parses its access token claims.
func (v *Verifier) VerifyAccessToken(ctx context.Context, raw string) (AccessTokenClaims, error) {
	claims, err := v.Verify(ctx, raw)
	if err != nil {
		return AccessTokenClaims{}, err
	}
	return ParseAccessToken(claims), nil
}

// classifyError maps a jwt parse failure to a coded error. A coded error
// from the key supplier is returned unchanged.
func classifyError(err error) *sserr.Error {
	var ssError *sserr.Error
	if errors.As(err, &ssError) {
		return ssError
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "token: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is unverifiable")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is not yet valid")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: required claim is missing")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token audience is invalid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token validation failed")
	}
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
