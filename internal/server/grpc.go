package server

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/windfall/phonoecho/internal/config"
)

// ServiceName is the gRPC health service name of the practice API.
const ServiceName = "phonoecho.Practice"

// GRPCServer serves the standard gRPC health service so orchestrators can
// probe the process without going through HTTP.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
	log    zerolog.Logger
}

// NewGRPCServer creates a new gRPC server.
func NewGRPCServer(cfg *config.Config, log zerolog.Logger) *GRPCServer {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			UnaryLoggingInterceptor(log),
			UnaryRecoveryInterceptor(log),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(log),
			StreamRecoveryInterceptor(log),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Enable reflection for development
	if cfg.IsDevelopment() {
		reflection.Register(server)
	}

	return &GRPCServer{
		server: server,
		health: healthServer,
		addr:   cfg.GRPCAddress(),
		log:    log,
	}
}

// SetServing reports whether the practice API can take traffic.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Start starts the gRPC server.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.server.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *GRPCServer) GracefulStop() {
	s.log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()
}
