package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cephadmd/cephadmd/pkg/agent"
	"github.com/cephadmd/cephadmd/pkg/agentapi"
	"github.com/cephadmd/cephadmd/pkg/agentstore"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/runtime"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run or query the host agent",
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the host agent in the foreground",
	Long: `agent run loads the agent's config and keyring, listens for
mgr-pushed config updates over mutual TLS, gathers local daemon and volume
state on an adaptive schedule, and reports snapshots back to the manager
until it receives SIGINT or SIGTERM.`,
	RunE: runAgentRun,
}

var agentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running agent's liveness over its loopback health server",
	RunE:  runAgentStatus,
}

func init() {
	agentRunCmd.Flags().String("config", "/var/lib/cephadmd/agent/config.json", "Path to the agent's JSON config")
	agentRunCmd.Flags().String("keyring", "/var/lib/cephadmd/agent/keyring", "Path to the agent's keyring")

	agentStatusCmd.Flags().String("addr", "127.0.0.1:0", "Agent loopback health server address")
	_ = agentStatusCmd.MarkFlagRequired("addr")

	agentCmd.AddCommand(agentRunCmd)
	agentCmd.AddCommand(agentStatusCmd)
}

func runAgentRun(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	configPath, _ := cmd.Flags().GetString("config")
	keyringPath, _ := cmd.Flags().GetString("keyring")

	cfg, keyring, err := agent.LoadConfig(configPath, keyringPath)
	if err != nil {
		return fmt.Errorf("loading agent config: %w", err)
	}

	store, err := agentstore.Open(host.DataDir)
	if err != nil {
		return fmt.Errorf("opening agent store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.WithCluster(cfg.ClusterID).Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}

	a := agent.New(cfg, keyring, host, rt, store)

	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Stop()
		cancel()
	}()

	return a.Run(ctx)
}

func runAgentStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	status, err := agentapi.Query(context.Background(), addr)
	if err != nil {
		return fmt.Errorf("querying agent at %s: %w", addr, err)
	}

	fmt.Printf("Process:  %s\n", servingString(status.Process))
	fmt.Printf("Gatherer: %s\n", servingString(status.Gatherer))
	if status.Process != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
	return nil
}

func servingString(s healthpb.HealthCheckResponse_ServingStatus) string {
	switch s {
	case healthpb.HealthCheckResponse_SERVING:
		return "serving"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "not serving"
	default:
		return "unknown"
	}
}
