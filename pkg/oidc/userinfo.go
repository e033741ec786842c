package oidc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// maxUserInfoSize bounds the user-info response read from the network (1 MB).
const maxUserInfoSize = 1 << 20

// HTTPClient abstracts the client used for outbound calls. The standard
// [http.Client] satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UserInfoRetriever fetches the raw user-info claims for an access token.
type UserInfoRetriever interface {
	RetrieveUserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// UserInfoRetrieverFunc adapts a function to [UserInfoRetriever].
type UserInfoRetrieverFunc func(ctx context.Context, accessToken string) (map[string]any, error)

// RetrieveUserInfo calls f(ctx, accessToken).
func (f UserInfoRetrieverFunc) RetrieveUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return f(ctx, accessToken)
}

// HTTPUserInfoRetriever calls the identity provider's user-info endpoint
// with the access token as a bearer credential.
type HTTPUserInfoRetriever struct {
	uri    string
	client HTTPClient
	tracer trace.Tracer
	logger *slog.Logger
}

var _ UserInfoRetriever = (*HTTPUserInfoRetriever)(nil)

// NewHTTPUserInfoRetriever creates a retriever for the endpoint at uri.
func NewHTTPUserInfoRetriever(uri string, opts ...Option) (*HTTPUserInfoRetriever, error) {
	if err := requireAbsoluteURL("user-info-uri", uri); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &HTTPUserInfoRetriever{
		uri:    uri,
		client: o.httpClient,
		tracer: o.tracer,
		logger: o.logger,
	}, nil
}

// RetrieveUserInfo performs one GET request. Any transport failure, non-200
// status or undecodable body is returned with
// [sserr.CodeAuthenticationUserInfo].
func (r *HTTPUserInfoRetriever) RetrieveUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ctx, span := r.tracer.Start(ctx, "oidc.FetchUserInfo",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("oidc.user_info_uri", r.uri)))
	defer span.End()

	info, err := r.retrieve(ctx, accessToken)
	if err != nil {
		finishSpan(span, err)
		r.logger.WarnContext(ctx, "oidc: user info retrieval failed",
			"uri", r.uri,
			"error", err,
		)
		return nil, err
	}
	return info, nil
}

func (r *HTTPUserInfoRetriever) retrieve(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.uri, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationUserInfo, "oidc: failed to create user info request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationUserInfo, "oidc: user info request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.Newf(sserr.CodeAuthenticationUserInfo,
			"oidc: user info endpoint returned status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationUserInfo, "oidc: failed to read user info response")
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationUserInfo, "oidc: failed to parse user info JSON")
	}
	if info == nil {
		info = map[string]any{}
	}
	return info, nil
}

// UserClaimsSupplier resolves the normalized claims of the user an access
// token was issued to.
type UserClaimsSupplier interface {
	UserClaims(ctx context.Context, accessToken string) (*UserClaims, error)
}

// UserInfoClaimsSupplier retrieves user info and extracts [UserClaims]
// from it with a fixed claim name mapping.
type UserInfoClaimsSupplier struct {
	retriever UserInfoRetriever
	names     ClaimNames
}

var _ UserClaimsSupplier = (*UserInfoClaimsSupplier)(nil)

// NewUserInfoClaimsSupplier combines retriever with the claim names
// resolved from claims.
func NewUserInfoClaimsSupplier(retriever UserInfoRetriever, claims ClaimsConfig) (*UserInfoClaimsSupplier, error) {
	if retriever == nil {
		return nil, sserr.Configuration("oidc: user info retriever must not be nil")
	}
	if err := claims.Validate(); err != nil {
		return nil, err
	}
	return &UserInfoClaimsSupplier{retriever: retriever, names: claims.Resolve()}, nil
}

// Names returns the effective claim names.
func (s *UserInfoClaimsSupplier) Names() ClaimNames {
	return s.names
}

// UserClaims retrieves and normalizes the user's claims.
func (s *UserInfoClaimsSupplier) UserClaims(ctx context.Context, accessToken string) (*UserClaims, error) {
	info, err := s.retriever.RetrieveUserInfo(ctx, accessToken)
	if err != nil {
		if _, ok := sserr.AsError(err); ok {
			return nil, err
		}
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationUserInfo, "oidc: user info retrieval failed")
	}
	return ExtractUserClaims(info, s.names)
}

func requireAbsoluteURL(property, raw string) error {
	if raw == "" {
		return sserr.Newf(sserr.CodeValidationRequired, "oidc: configuration property %q is required", property)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat, "oidc: configuration property %q must be an absolute URL", property)
	}
	return nil
}
