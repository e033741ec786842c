package oauth2

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// Token is the token endpoint response. Extra("id_token") returns the ID
// token of an authorization code exchange.
type Token = xoauth2.Token

// TokenEndpoint posts grants to an OAuth2 token endpoint, authenticating
// the client with HTTP Basic credentials. Client id and secret are
// form-encoded before Base64 as RFC 6749 section 2.3.1 requires, so a
// secret such as "a+b/c" is sent as "a%2Bb%2Fc". Servers that compare the
// undecoded value only interoperate with secrets made of unreserved
// characters.
type TokenEndpoint struct {
	cfg        ClientCredentialsConfig
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewTokenEndpoint validates cfg and creates an endpoint.
func NewTokenEndpoint(cfg ClientCredentialsConfig, opts ...Option) (*TokenEndpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &TokenEndpoint{
		cfg:        cfg,
		httpClient: o.httpClient,
		tracer:     o.tracer,
		logger:     o.logger,
	}, nil
}

// ClientCredentials requests a token for this client with the
// client_credentials grant.
func (e *TokenEndpoint) ClientCredentials(ctx context.Context) (*Token, error) {
	conf := clientcredentials.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret.Value(),
		TokenURL:     e.cfg.TokenEndpoint,
		Scopes:       e.cfg.Scopes,
		AuthStyle:    xoauth2.AuthStyleInHeader,
	}
	return e.do(ctx, "client_credentials", func(ctx context.Context) (*Token, error) {
		return conf.Token(ctx)
	})
}

// ExchangeCode exchanges an authorization code for tokens. redirectURI
// must be the one used to obtain code.
func (e *TokenEndpoint) ExchangeCode(ctx context.Context, redirectURI, code string) (*Token, error) {
	conf := e.config()
	conf.RedirectURL = redirectURI
	return e.do(ctx, "authorization_code", func(ctx context.Context) (*Token, error) {
		return conf.Exchange(ctx, code)
	})
}

// Refresh obtains a new set of tokens with a refresh token.
func (e *TokenEndpoint) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, sserr.New(sserr.CodeAuthenticationToken, "oauth2: refresh token is empty")
	}
	conf := e.config()
	return e.do(ctx, "refresh_token", func(ctx context.Context) (*Token, error) {
		return conf.TokenSource(ctx, &xoauth2.Token{RefreshToken: refreshToken}).Token()
	})
}

func (e *TokenEndpoint) config() *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret.Value(),
		Endpoint: xoauth2.Endpoint{
			TokenURL:  e.cfg.TokenEndpoint,
			AuthStyle: xoauth2.AuthStyleInHeader,
		},
	}
}

func (e *TokenEndpoint) do(ctx context.Context, grant string, fn func(context.Context) (*Token, error)) (*Token, error) {
	ctx, span := e.tracer.Start(ctx, "oauth2.Token",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("oauth2.grant_type", grant),
			attribute.String("oauth2.client_id", e.cfg.ClientID),
		))
	defer span.End()

	tok, err := fn(context.WithValue(ctx, xoauth2.HTTPClient, e.httpClient))
	if err != nil {
		wrapped := wrapTokenError(err, grant)
		finishSpan(span, wrapped)
		e.logger.WarnContext(ctx, "oauth2: token request failed",
			"grant_type", grant,
			"client_id", e.cfg.ClientID,
			"error", err,
		)
		return nil, wrapped
	}
	return tok, nil
}

func wrapTokenError(err error, grant string) *sserr.Error {
	e := sserr.Wrapf(err, sserr.CodeAuthenticationToken, "oauth2: %s grant failed", grant)
	var re *xoauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			e = e.WithDetail("status", re.Response.StatusCode)
		}
		if re.ErrorCode != "" {
			e = e.WithDetail("error", re.ErrorCode)
		}
	}
	return e
}
