// Package agentapi exposes the agent's liveness/readiness as a loopback
// gRPC service using the standard health-checking protocol
// (grpc.health.v1.Health), so `cephadmd agent status` and any external
// prober can query it with a stock grpc_health_v1 client instead of a
// bespoke wire format. Grounded on pkg/api/health.go's liveness/readiness
// split, moved from hand-rolled HTTP JSON endpoints to the protocol gRPC
// itself ships a generated client and server for.
package agentapi

import (
	"context"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a loopback-only health server: it binds 127.0.0.1 and reports
// one overall service ("") plus a per-gatherer-liveness service
// ("gatherer") so a prober can distinguish "agent process is up" from
// "agent is actually gathering and reporting".
type Server struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server

	mu   sync.Mutex
	addr string
}

// New builds a Server with both watched services starting NOT_SERVING,
// matching grpc_health_v1's convention that a service must be explicitly
// marked serving once it's actually ready.
func New() *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("gatherer", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, healthSrv: hs}
}

// Serve binds to loopback on port (0 picks an ephemeral port) and serves
// until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", portString(port)))
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()
	go func() {
		_ = s.grpcServer.Serve(ln)
	}()
	return s.addr, nil
}

// Addr returns the address Serve bound to, once it has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetProcessServing flips the overall process health to SERVING/NOT_SERVING.
func (s *Server) SetProcessServing(serving bool) {
	s.healthSrv.SetServingStatus("", status(serving))
}

// SetGathererServing flips the gatherer-liveness service's status, toggled
// by the reporter loop each successful cycle and on gather failure.
func (s *Server) SetGathererServing(serving bool) {
	s.healthSrv.SetServingStatus("gatherer", status(serving))
}

func status(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func portString(port int) string {
	return strconv.Itoa(port)
}
