package oidc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor running
// guard against the incoming metadata. Rejected calls fail with
// codes.Unauthenticated and never reach the handler.
func UnaryServerInterceptor(guard *Guard) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, guard)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(guard *Guard) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), guard)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticateGRPC(ctx context.Context, guard *Guard) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx, _, err := guard.Authenticate(ctx, MetadataRequest(md))
	if err != nil {
		if sserr.IsMissingToken(err) {
			return ctx, status.Error(codes.Unauthenticated, sserr.MessageAccessTokenMissing)
		}
		return ctx, status.Error(codes.Unauthenticated, "access token rejected")
	}
	return ctx, nil
}

// wrappedServerStream overrides Context so stream handlers see the
// Authentication added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
