package oauth2

import (
	"context"
	"net/http"

	"google.golang.org/grpc/credentials"
)

// Transport is an [http.RoundTripper] that sets a bearer Authorization
// header from a token source on every request. The original request is
// not modified.
//
// Example:
//
//	client := &http.Client{Transport: oauth2.NewTransport(provider, nil)}
//	resp, err := client.Do(req.WithContext(ctx))
type Transport struct {
	source AccessTokenSource
	base   http.RoundTripper
}

// NewTransport wraps base. If base is nil, [http.DefaultTransport] is used.
func NewTransport(source AccessTokenSource, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{source: source, base: base}
}

// RoundTrip implements [http.RoundTripper]. A token failure aborts the
// request.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	token, err := t.source.AccessToken(r.Context())
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, err
	}
	clone := r.Clone(r.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

// PerRPCCredentials presents a bearer token from a token source on gRPC
// calls. Use it with grpc.WithPerRPCCredentials.
type PerRPCCredentials struct {
	source   AccessTokenSource
	insecure bool
}

var _ credentials.PerRPCCredentials = (*PerRPCCredentials)(nil)

// NewPerRPCCredentials creates credentials that require a secure
// transport unless allowInsecure is set.
func NewPerRPCCredentials(source AccessTokenSource, allowInsecure bool) *PerRPCCredentials {
	return &PerRPCCredentials{source: source, insecure: allowInsecure}
}

// GetRequestMetadata returns the authorization metadata for one call.
func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	token, err := c.source.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity reports whether the token may only travel over
// TLS.
func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return !c.insecure
}
