package handler

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server implements the standard grpc.health.v1 Health service for load balancers and
// Kubernetes probes. Check answers for the whole server regardless of the requested service name.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewServer returns a Health gRPC server backed by checker.
func NewServer(checker *Checker) *Server {
	return &Server{checker: checker}
}

// Check returns SERVING when every readiness check passes, NOT_SERVING otherwise.
// A failing dependency is reported in the status, not as an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := s.checker.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewGRPCServer returns a gRPC server exposing only the health service, instrumented with
// OpenTelemetry.
func NewGRPCServer(checker *Checker) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, NewServer(checker))
	return s
}
