package agentapi

import (
	"context"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServeReportsNotServingUntilToggled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := s.Serve(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	status, err := Query(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if status.Process != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before SetProcessServing, got %v", status.Process)
	}
	if status.Gatherer != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected gatherer NOT_SERVING before toggled, got %v", status.Gatherer)
	}

	s.SetProcessServing(true)
	s.SetGathererServing(true)

	// SetServingStatus is asynchronous to the health server's internal
	// watch dispatch; give it a moment before re-querying.
	time.Sleep(50 * time.Millisecond)

	status, err = Query(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if status.Process != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING after toggle, got %v", status.Process)
	}
	if status.Gatherer != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected gatherer SERVING after toggle, got %v", status.Gatherer)
	}
}

func TestSetGathererServingFlips(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := s.Serve(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.SetGathererServing(true)
	time.Sleep(20 * time.Millisecond)

	status, err := Query(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if status.Gatherer != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", status.Gatherer)
	}

	s.SetGathererServing(false)
	time.Sleep(20 * time.Millisecond)

	status, err = Query(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if status.Gatherer != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", status.Gatherer)
	}
}
