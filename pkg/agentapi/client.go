package agentapi

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status is the result of a Query: the overall process status and the
// gatherer-liveness status, reported separately so `agent status` can
// distinguish "process up, gatherer stuck" from a fully healthy agent.
type Status struct {
	Process  healthpb.HealthCheckResponse_ServingStatus
	Gatherer healthpb.HealthCheckResponse_ServingStatus
}

// Query dials the agent's loopback health server at addr and asks for both
// watched services' current status. Used by `cephadmd agent status`.
func Query(ctx context.Context, addr string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Status{}, fmt.Errorf("dialing agent health endpoint %s: %w", addr, err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	proc, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		return Status{}, fmt.Errorf("checking process health: %w", err)
	}
	gatherer, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "gatherer"})
	if err != nil {
		return Status{}, fmt.Errorf("checking gatherer health: %w", err)
	}
	return Status{Process: proc.Status, Gatherer: gatherer.Status}, nil
}
