// Package grpcapi exposes the service's gRPC surface: the standard health
// service and server reflection.
package grpcapi

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-conversation-assist-service/internal/observability"
	"ai-conversation-assist-service/internal/observability/metrics"
)

// ServiceName is the health service name clients query for this service.
const ServiceName = "conversation.assist.v1.AssistService"

// Server wraps a grpc.Server and its health reporter.
type Server struct {
	*grpc.Server
	health *health.Server
}

// New builds a server with the metrics and logging interceptors installed.
// It reports NOT_SERVING until SetServing(true) is called.
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	reflection.Register(g)

	s := &Server{Server: g, health: hs}
	s.SetServing(false)
	return s
}

// SetServing updates the overall and named health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown marks every service NOT_SERVING and stops accepting calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
