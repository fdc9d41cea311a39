package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"ai-conversation-assist-service/internal/observability/logging"
	"ai-conversation-assist-service/internal/observability/metrics"
)

// SessionMetadataKey carries the conversation session a gRPC call belongs to.
const SessionMetadataKey = "x-session-id"

const (
	healthService     = "/grpc.health.v1.Health/"
	reflectionService = "/grpc.reflection."
)

// UnaryServerInterceptor records a request metric and logs each unary call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(ctx, logger, m, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor records a request metric and logs each stream when it ends.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(ss.Context(), logger, m, info.FullMethod, err, time.Since(start))
		return err
	}
}

func observeCall(ctx context.Context, logger zerolog.Logger, m *metrics.Metrics, method string, err error, elapsed time.Duration) {
	code := status.Code(err)
	m.RecordGRPCRequest(method, code.String())

	ev := logger.WithLevel(callLevel(method, code))
	if id := sessionID(ctx); id != "" {
		ev = ev.Str("sessionId", id)
	}
	ev.Err(err).
		Str("grpcMethod", method).
		Str("grpcCode", code.String()).
		Int64("durationMs", elapsed.Milliseconds()).
		Msg("gRPC call completed")
}

// callLevel picks the log level for a finished call. Failures log at warn,
// health checks at trace.
func callLevel(method string, code codes.Code) zerolog.Level {
	switch {
	case code != codes.OK && code != codes.Canceled:
		return zerolog.WarnLevel
	case strings.HasPrefix(method, healthService):
		return zerolog.TraceLevel
	case strings.HasPrefix(method, reflectionService):
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func sessionID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(SessionMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}
