package server

import (
	"net"

	"github.com/pixperk/tslock/pkg/slots"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// health service name reported for the lease table
const ServiceName = "tslock.LeaseTable"

// gRPC endpoint that lets orchestrators probe whether the lease table daemon
// is serving
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	table  *slots.Table
	log    zerolog.Logger
}

func NewServer(table *slots.Table, log zerolog.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpc:   gs,
		health: hs,
		table:  table,
		log:    log,
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Int("slots", s.table.Len()).Msg("grpc health server listening")
	return s.grpc.Serve(lis)
}

// flips every service to NOT_SERVING so probes fail before the table goes away
func (s *Server) Drain() {
	s.health.Shutdown()
}

func (s *Server) Stop() {
	s.Drain()
	s.grpc.GracefulStop()
}
