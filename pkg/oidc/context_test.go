package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthenticationContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := AuthenticationFromContext(ctx)
	assert.False(t, ok)
	assert.Panics(t, func() { MustAuthenticationFromContext(ctx) })

	_, ok = AuthenticationFromContext(ContextWithAuthentication(ctx, nil))
	assert.False(t, ok, "a nil authentication is never reported as present")

	authn := &Authentication{ID: "client-1"}
	got, ok := AuthenticationFromContext(ContextWithAuthentication(ctx, authn))
	assert.True(t, ok)
	assert.Same(t, authn, got)
}
