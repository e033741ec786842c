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

func TestNewHTTPUserInfoRetriever_InvalidURI(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPUserInfoRetriever("")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewHTTPUserInfoRetriever("/userinfo")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationFormat)
}

func TestHTTPUserInfoRetriever_SendsBearerToken(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	p.setUserInfo(map[string]any{"sub": "user-1", "name": "Jane"})

	r, err := NewHTTPUserInfoRetriever(p.URL + "/userinfo")
	require.NoError(t, err)

	info, err := r.RetrieveUserInfo(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sub": "user-1", "name": "Jane"}, info)
	assert.Equal(t, "token-123", p.bearer())
	assert.EqualValues(t, 1, p.userInfoHits.Load())
}

func TestHTTPUserInfoRetriever_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not JSON", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html></html>"))
		}},
		{"JSON array", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`["sub"]`))
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			t.Cleanup(srv.Close)

			r, err := NewHTTPUserInfoRetriever(srv.URL)
			require.NoError(t, err)

			info, err := r.RetrieveUserInfo(context.Background(), "token")
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationUserInfo)
			assert.Nil(t, info)
		})
	}
}

func TestHTTPUserInfoRetriever_RecordsSpan(t *testing.T) {
	t.Parallel()
	tp, rec := testutil.NewTracerProvider(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	r, err := NewHTTPUserInfoRetriever(srv.URL, WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = r.RetrieveUserInfo(context.Background(), "token")
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "oidc.FetchUserInfo", spans[0].Name())
	assert.NotEmpty(t, spans[0].Events(), "error should be recorded")
}

func TestUserInfoClaimsSupplier(t *testing.T) {
	t.Parallel()
	var gotToken string
	retriever := UserInfoRetrieverFunc(func(_ context.Context, accessToken string) (map[string]any, error) {
		gotToken = accessToken
		return map[string]any{
			"sub":            "user-1",
			"qc:claims/role": "admin",
		}, nil
	})

	names := DefaultClaimNames()
	names.Roles = "claims/role"
	s, err := NewUserInfoClaimsSupplier(retriever, ClaimsConfig{Prefix: "qc:", Names: names})
	require.NoError(t, err)
	assert.Equal(t, "qc:claims/role", s.Names().Roles)

	claims, err := s.UserClaims(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", gotToken)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestUserInfoClaimsSupplier_WrapsUncodedErrors(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	retriever := UserInfoRetrieverFunc(func(context.Context, string) (map[string]any, error) {
		return nil, cause
	})
	s, err := NewUserInfoClaimsSupplier(retriever, ClaimsConfig{Names: DefaultClaimNames()})
	require.NoError(t, err)

	_, err = s.UserClaims(context.Background(), "token")
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationUserInfo)
	assert.ErrorIs(t, err, cause)
}

func TestNewUserInfoClaimsSupplier_Configuration(t *testing.T) {
	t.Parallel()
	_, err := NewUserInfoClaimsSupplier(nil, ClaimsConfig{Names: DefaultClaimNames()})
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)

	retriever := UserInfoRetrieverFunc(func(context.Context, string) (map[string]any, error) {
		return nil, nil
	})
	_, err = NewUserInfoClaimsSupplier(retriever, ClaimsConfig{})
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}
