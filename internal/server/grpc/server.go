// Package grpc runs the operations gRPC endpoint. It serves the standard
// grpc.health.v1.Health service, whose status follows the readiness of the
// HTTP API.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/health"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address     string
	serviceName string
	readiness   *health.Manager
	health      *grpchealth.Server
	logger      logging.Logger
	// stopTimeout bounds GracefulStop; open Watch streams are cut after it.
	stopTimeout time.Duration
}

func NewGRPCServer(address, serviceName string, readiness *health.Manager, l logging.Logger) *GRPCServer {
	s := &GRPCServer{
		address:     address,
		serviceName: serviceName,
		readiness:   readiness,
		health:      grpchealth.NewServer(),
		logger:      l.With("module", "grpc_server"),
		stopTimeout: 10 * time.Second,
	}

	s.setStatus(readiness.IsReady())
	readiness.OnChange(s.setStatus)
	return s
}

func (s *GRPCServer) setStatus(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(s.serviceName, st)
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
// It returns only after in-flight RPCs have finished or stopTimeout passed.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()

		graceful := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(graceful)
		}()
		select {
		case <-graceful:
		case <-time.After(s.stopTimeout):
			s.logger.Warn(ctx, "gRPC graceful stop timed out, closing streams")
			srv.Stop()
			<-graceful
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	err := srv.Serve(lis)
	if ctx.Err() != nil {
		<-stopped
	}
	return err
}
