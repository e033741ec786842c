package oauth2

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-oidc/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// tokenServer is a fake token endpoint issuing token-1, token-2, ...
type tokenServer struct {
	*httptest.Server

	hits   atomic.Int64
	status atomic.Int32

	mu       sync.Mutex
	lastAuth string
	lastForm url.Values
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	s := &tokenServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.hits.Add(1)
		_ = r.ParseForm()
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.lastForm = r.PostForm
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if code := int(s.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"bearer","expires_in":3600,"refresh_token":"refresh-%d","id_token":"id-%d"}`, n, n, n)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *tokenServer) last() (string, url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth, s.lastForm
}

func (s *tokenServer) config() ClientCredentialsConfig {
	cfg := DefaultClientCredentialsConfig()
	cfg.TokenEndpoint = s.URL + "/oauth2/token"
	cfg.ClientID = "client-123"
	cfg.ClientSecret = "secret-123"
	return *cfg
}

func newEndpoint(t *testing.T, cfg ClientCredentialsConfig, opts ...Option) *TokenEndpoint {
	t.Helper()
	e, err := NewTokenEndpoint(cfg, opts...)
	require.NoError(t, err)
	return e
}

func TestClientCredentialsConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*ClientCredentialsConfig)
		code   sserr.Code
	}{
		{"missing endpoint", func(c *ClientCredentialsConfig) { c.TokenEndpoint = "" }, sserr.CodeValidationRequired},
		{"relative endpoint", func(c *ClientCredentialsConfig) { c.TokenEndpoint = "/token" }, sserr.CodeValidationFormat},
		{"missing client", func(c *ClientCredentialsConfig) { c.ClientID = "" }, sserr.CodeValidationRequired},
		{"negative ttl", func(c *ClientCredentialsConfig) { c.CacheTTL = -1 }, sserr.CodeInternalConfiguration},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := ClientCredentialsConfig{
				TokenEndpoint: "https://idam/oauth2/token",
				ClientID:      "client-123",
			}
			tc.mutate(&cfg)
			testutil.RequireErrorCode(t, cfg.Validate(), tc.code)
		})
	}

	cfg := ClientCredentialsConfig{TokenEndpoint: "https://idam/oauth2/token", ClientID: "client-123"}
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.CacheTTL, "a zero TTL is kept")
}

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()
	s := Secret("secret-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED] [REDACTED]", fmt.Sprintf("%v %#v", s, s))
	assert.NotContains(t, fmt.Sprintf("%+v", ClientCredentialsConfig{ClientSecret: s}), "secret-123")
	assert.Equal(t, "secret-123", s.Value())
}

func TestTokenEndpoint_ClientCredentials(t *testing.T) {
	t.Parallel()
	srv := newTokenServer(t)
	cfg := srv.config()
	cfg.Scopes = []string{"data-store/read", "data-store/write"}

	tok, err := newEndpoint(t, cfg).ClientCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.AccessToken)

	auth, form := srv.last()
	assert.Equal(t, "Basic Y2xpZW50LTEyMzpzZWNyZXQtMTIz", auth)
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "data-store/read data-store/write", form.Get("scope"))
	assert.Empty(t, form.Get("client_secret"), "the secret travels in the header only")
}

func TestTokenEndpoint_ExchangeCode(t *testing.T) {
	t.Parallel()
	srv := newTokenServer(t)

	tok, err := newEndpoint(t, srv.config()).ExchangeCode(context.Background(), "https://app/callback", "code-123")
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "id-1", tok.Extra("id_token"))

	auth, form := srv.last()
	assert.Equal(t, "Basic Y2xpZW50LTEyMzpzZWNyZXQtMTIz", auth)
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-123", form.Get("code"))
	assert.Equal(t, "https://app/callback", form.Get("redirect_uri"))
}

func TestTokenEndpoint_Refresh(t *testing.T) {
	t.Parallel()
	srv := newTokenServer(t)
	e := newEndpoint(t, srv.config())

	tok, err := e.Refresh(context.Background(), "refresh-123")
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.AccessToken)

	_, form := srv.last()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-123", form.Get("refresh_token"))

	_, err = e.Refresh(context.Background(), "")
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationToken)
}

func TestTokenEndpoint_Failure(t *testing.T) {
	t.Parallel()
	srv := newTokenServer(t)
	srv.status.Store(http.StatusUnauthorized)
	tp, rec := testutil.NewTracerProvider(t)

	tok, err := newEndpoint(t, srv.config(), WithTracerProvider(tp)).ClientCredentials(context.Background())
	assert.Nil(t, tok)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationToken)

	e, _ := sserr.AsError(err)
	assert.Equal(t, http.StatusUnauthorized, e.Details["status"])
	assert.Equal(t, "invalid_client", e.Details["error"])

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "oauth2.Token", spans[0].Name())
}

func TestTokenEndpoint_FormEncodesBasicCredentials(t *testing.T) {
	t.Parallel()
	srv := newTokenServer(t)
	cfg := srv.config()
	cfg.ClientID = "svc:reports"
	cfg.ClientSecret = "s+cr/t:1 ="

	_, err := newEndpoint(t, cfg).ClientCredentials(context.Background())
	require.NoError(t, err)

	auth, _ := srv.last()
	want := "svc%3Areports:s%2Bcr%2Ft%3A1+%3D"
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte(want)), auth)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", auth)
	id, secret, ok := r.BasicAuth()
	require.True(t, ok)
	id, err = url.QueryUnescape(id)
	require.NoError(t, err)
	secret, err = url.QueryUnescape(secret)
	require.NoError(t, err)
	assert.Equal(t, "svc:reports", id)
	assert.Equal(t, "s+cr/t:1 =", secret)
}
