package oidc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// Guard authenticates inbound requests. It is the only component that
// ends request processing early; everything below it returns errors.
type Guard struct {
	tokens AccessTokenSupplier
	authn  AuthenticationSupplier
	logger *slog.Logger

	// closers are resources created by NewResourceServerGuard.
	closers []io.Closer
	// checks report on backing services the guard depends on.
	checks []func(context.Context) error
}

// HealthChecker is implemented by backing services that can report
// readiness, such as the shared Redis key store client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewGuard creates a guard reading tokens with tokens and resolving them
// with authn.
func NewGuard(tokens AccessTokenSupplier, authn AuthenticationSupplier, opts ...Option) (*Guard, error) {
	if tokens == nil {
		return nil, sserr.Configuration("oidc: access token supplier must not be nil")
	}
	if authn == nil {
		return nil, sserr.Configuration("oidc: authentication supplier must not be nil")
	}
	o := buildOptions(opts)
	return &Guard{tokens: tokens, authn: authn, logger: o.logger}, nil
}

// Authenticate resolves the caller of req and returns ctx with the
// Authentication attached. A request without a token fails with
// [sserr.MissingToken]; resolution errors are returned unchanged.
func (g *Guard) Authenticate(ctx context.Context, req Request) (context.Context, *Authentication, error) {
	accessToken, ok := g.tokens.AccessToken(req)
	if !ok {
		return ctx, nil, sserr.MissingToken()
	}

	authn, err := g.authn.Authenticate(ctx, accessToken)
	if err != nil {
		g.logger.DebugContext(ctx, "oidc: request authentication failed",
			"code", sserr.GetCode(err),
			"error", err,
		)
		return ctx, nil, err
	}
	return ContextWithAuthentication(ctx, authn), authn, nil
}

// Run authenticates req and then calls exactly one of next or onError.
// next receives the context carrying the Authentication and is called
// synchronously, once, after it is attached. onError receives the rejected
// request and the error unchanged.
func (g *Guard) Run(ctx context.Context, req Request, next func(ctx context.Context), onError func(ctx context.Context, req Request, err error)) {
	authCtx, _, err := g.Authenticate(ctx, req)
	if err != nil {
		onError(ctx, req, err)
		return
	}
	next(authCtx)
}

// Health reports whether the services backing the guard are reachable. It
// is always nil for guards created with [NewGuard].
func (g *Guard) Health(ctx context.Context) error {
	var errs []error
	for _, check := range g.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases resources owned by the guard. It is a no-op for guards
// created with [NewGuard].
func (g *Guard) Close() error {
	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
