package transport

import (
	"context"
	"time"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/pkg"
)

const (
	// TraceIDHeader is the metadata key carrying the lookup trace ID between nodes
	TraceIDHeader = "x-trace-id"
)

// ServerInterceptor creates a gRPC unary interceptor that restores the
// caller's trace ID (or starts a new one), logs each call and turns handler
// panics into codes.Internal.
func ServerInterceptor(logger *pkg.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		ctx = pkg.ContextWithTraceID(ctx, incomingTraceID(ctx))
		log := logger.WithContext(ctx)
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("method", info.FullMethod).
					Msg("RPC handler panicked")
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			if err != nil {
				log.Debug().
					Err(err).
					Str("method", info.FullMethod).
					Str("code", status.Code(err).String()).
					Dur("duration", time.Since(start)).
					Msg("RPC failed")
				return
			}
			log.Trace().
				Str("method", info.FullMethod).
				Dur("duration", time.Since(start)).
				Msg("RPC served")
		}()

		return handler(ctx, req)
	}
}

// incomingTraceID returns the trace ID sent by the caller, or a fresh one.
func incomingTraceID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(TraceIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return xid.New().String()
}

// ClientInterceptor creates a gRPC unary interceptor that forwards the trace
// ID stored in ctx to the remote node.
func ClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if traceID := pkg.TraceIDFromContext(ctx); traceID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, TraceIDHeader, traceID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
