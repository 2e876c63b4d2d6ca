// Package grpcserver exposes the standard gRPC health service for
// orchestration probes.
package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"amici-chat/internal/logging"
	"amici-chat/internal/observability"
)

// Server wraps a grpc.Server with a health service registered under the
// empty name and under service.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	service string
	log     logging.Logger
}

// New builds a server. Serving status starts as NOT_SERVING until
// SetServing is called.
func New(service string, log logging.Logger) *Server {
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, service: service, log: log}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status for both the server and the named
// service.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.log.Info(ctx, "grpc server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the server as not serving and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
