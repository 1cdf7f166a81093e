package server

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// healthMethodPrefix marks probe traffic, which is logged at debug level.
const healthMethodPrefix = "/grpc.health.v1.Health/"

func logRPC(log zerolog.Logger, method string, start time.Time, err error) {
	code := status.Code(err)

	var event *zerolog.Event
	switch {
	case err != nil && code != codes.Canceled:
		event = log.Error().Err(err)
	case strings.HasPrefix(method, healthMethodPrefix):
		event = log.Debug()
	default:
		event = log.Info()
	}

	event.
		Str("method", method).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC request")
}

// UnaryLoggingInterceptor logs unary RPC calls.
func UnaryLoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(log, info.FullMethod, start, err)
		return resp, err
	}
}

// UnaryRecoveryInterceptor recovers from panics in unary handlers.
func UnaryRecoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

// StreamLoggingInterceptor logs streaming RPC calls when they end. Health
// Watch streams live as long as the client.
func StreamLoggingInterceptor(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(log, info.FullMethod, start, err)
		return err
	}
}

// StreamRecoveryInterceptor recovers from panics in stream handlers.
func StreamRecoveryInterceptor(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

func recovered(log zerolog.Logger, method string, r interface{}) error {
	log.Error().
		Interface("panic", r).
		Str("stack", string(debug.Stack())).
		Str("method", method).
		Msg("gRPC panic recovered")
	return status.Errorf(codes.Internal, "internal server error")
}
