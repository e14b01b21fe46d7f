// Package health exposes the standard gRPC health service. The capture
// service reports SERVING while devices are bound.
package health

import (
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CaptureService is the health service name for the capture pipeline.
const CaptureService = "netspeed.Capture"

// Server hosts the gRPC health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer creates a server that reports NOT_SERVING until SetServing.
func NewServer() *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetServing(false)
	return s
}

// SetServing updates the status of the capture service and the overall
// server status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CaptureService, status)
	s.health.SetServingStatus("", status)
}

// Listen binds addr and serves in the background.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.Serve(lis)
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) {
	go func() {
		log.Printf("gRPC health server listening at %v", lis.Addr())
		if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.Printf("gRPC health server failed: %v", err)
		}
	}()
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
