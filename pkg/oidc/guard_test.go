package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-oidc/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// staticAuthn returns authn for token "good" and a verification error
// otherwise.
func staticAuthn(authn *Authentication) AuthenticationSupplier {
	return AuthenticationSupplierFunc(func(_ context.Context, accessToken string) (*Authentication, error) {
		if accessToken != "good" {
			return nil, sserr.New(sserr.CodeAuthenticationInvalid, "token rejected")
		}
		return authn, nil
	})
}

func newGuard(t *testing.T, authn AuthenticationSupplier) *Guard {
	t.Helper()
	g, err := NewGuard(HeaderTokenSupplier{}, authn)
	require.NoError(t, err)
	return g
}

func requestWithToken(token string) Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return HTTPRequest(r)
}

func TestNewGuard_Configuration(t *testing.T) {
	t.Parallel()
	_, err := NewGuard(nil, staticAuthn(nil))
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)

	_, err = NewGuard(HeaderTokenSupplier{}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestGuard_Run_MissingToken(t *testing.T) {
	t.Parallel()
	g := newGuard(t, staticAuthn(&Authentication{ID: "client-1"}))

	var nextCalls int
	var gotErr error
	g.Run(context.Background(), requestWithToken(""),
		func(context.Context) { nextCalls++ },
		func(_ context.Context, _ Request, err error) { gotErr = err },
	)

	assert.Zero(t, nextCalls)
	testutil.RequireErrorCode(t, gotErr, sserr.CodeAuthenticationMissing)
	e, _ := sserr.AsError(gotErr)
	assert.Equal(t, "Access token missing", e.Message)
}

func TestGuard_Run_Success(t *testing.T) {
	t.Parallel()
	want := &Authentication{ID: "client-1", ClientOnly: true, Name: SystemName}
	g := newGuard(t, staticAuthn(want))

	var nextCalls int
	var got *Authentication
	g.Run(context.Background(), requestWithToken("good"),
		func(ctx context.Context) {
			nextCalls++
			got, _ = AuthenticationFromContext(ctx)
		},
		func(_ context.Context, _ Request, err error) { t.Errorf("unexpected error: %v", err) },
	)

	assert.Equal(t, 1, nextCalls)
	assert.Same(t, want, got)
}

func TestGuard_Run_ResolutionFailure(t *testing.T) {
	t.Parallel()
	g := newGuard(t, staticAuthn(&Authentication{}))

	var errCalls int
	var gotErr error
	var gotReq Request
	req := requestWithToken("bad")
	g.Run(context.Background(), req,
		func(context.Context) { t.Error("next must not run") },
		func(ctx context.Context, r Request, err error) {
			errCalls++
			gotReq = r
			gotErr = err
			_, ok := AuthenticationFromContext(ctx)
			assert.False(t, ok, "no authentication is attached on failure")
		},
	)

	assert.Equal(t, 1, errCalls)
	assert.Equal(t, req, gotReq, "onError receives the rejected request")
	testutil.RequireErrorCode(t, gotErr, sserr.CodeAuthenticationInvalid)
}

func TestGuard_Authenticate(t *testing.T) {
	t.Parallel()
	want := &Authentication{ID: "user-1"}
	g := newGuard(t, staticAuthn(want))

	ctx, authn, err := g.Authenticate(context.Background(), requestWithToken("good"))
	require.NoError(t, err)
	assert.Same(t, want, authn)
	assert.Same(t, want, MustAuthenticationFromContext(ctx))

	require.NoError(t, g.Close())
}

func TestGuard_Health(t *testing.T) {
	t.Parallel()
	g := newGuard(t, staticAuthn(&Authentication{}))
	require.NoError(t, g.Health(context.Background()))

	down := errors.New("redis: connection refused")
	g.checks = []func(context.Context) error{
		func(context.Context) error { return nil },
		func(context.Context) error { return down },
	}
	assert.ErrorIs(t, g.Health(context.Background()), down)
}
