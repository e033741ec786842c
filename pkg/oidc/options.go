// Package oidc authenticates requests to an OAuth2 resource server.
//
// A [Guard] extracts the access token from a request with an
// [AccessTokenSupplier], resolves an [Authentication] through a [Resolver]
// and attaches it to the request context. The resolver decides between two
// shapes of caller:
//
//   - a user, when the token was granted the OpenID scope; user claims are
//     then fetched from the user-info endpoint and the user's roles become
//     the authorities
//   - a client, otherwise; the token's scopes become the authorities
//
// [HTTPMiddleware] and the gRPC interceptors adapt the guard to servers.
// [NewResourceServerGuard] wires a complete guard from a [Config].
//
// # Usage
//
//	guard, err := oidc.NewResourceServerGuard(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	handler := oidc.HTTPMiddleware(guard, nil)(mux)
//
//	// in a handler
//	authn := oidc.MustAuthenticationFromContext(r.Context())
package oidc

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-oidc/pkg/jwks"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/StricklySoft/stricklysoft-oidc/pkg/oidc"

// Option configures the components in this package.
type Option func(*options)

type options struct {
	httpClient  HTTPClient
	tracer      trace.Tracer
	tp          trace.TracerProvider
	logger      *slog.Logger
	openIDScope string
	now         func() time.Time
	keyStore    jwks.KeyStore
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
		openIDScope: DefaultOpenIDScope,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient sets the client used for outbound calls to the identity
// provider.
func WithHTTPClient(c HTTPClient) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTracerProvider sets the provider used to create spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tp = tp
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the logger. Access tokens are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpenIDScope sets the scope that marks a token as issued to a user.
func WithOpenIDScope(scope string) Option {
	return func(o *options) {
		o.openIDScope = scope
	}
}

// WithClock sets the time source used for key cache expiry and token
// validation.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
