package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// mockServerStream is a minimal grpc.ServerStream carrying a context.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()
	want := &Authentication{ID: "client-1", ClientOnly: true}
	interceptor := UnaryServerInterceptor(newGuard(t, staticAuthn(want)))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer good"))
	var got *Authentication
	resp, err := interceptor(ctx, "request", &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		got = MustAuthenticationFromContext(ctx)
		return "response", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "response", resp)
	assert.Same(t, want, got)
}

func TestUnaryServerInterceptor_Rejects(t *testing.T) {
	t.Parallel()
	interceptor := UnaryServerInterceptor(newGuard(t, staticAuthn(&Authentication{})))

	tests := []struct {
		name    string
		ctx     context.Context
		message string
	}{
		{"no metadata", context.Background(), "Access token missing"},
		{"no authorization", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "v")), "Access token missing"},
		{"invalid token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer bad")), "access token rejected"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := interceptor(tc.ctx, "request", &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
				t.Error("handler must not run")
				return nil, nil
			})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Equal(t, tc.message, st.Message())
		})
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()
	want := &Authentication{ID: "user-1"}
	interceptor := StreamServerInterceptor(newGuard(t, staticAuthn(want)))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer good"))
	var got *Authentication
	err := interceptor(nil, &mockServerStream{ctx: ctx}, &grpc.StreamServerInfo{}, func(_ any, ss grpc.ServerStream) error {
		got = MustAuthenticationFromContext(ss.Context())
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, want, got)

	err = interceptor(nil, &mockServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		t.Error("handler must not run")
		return nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
