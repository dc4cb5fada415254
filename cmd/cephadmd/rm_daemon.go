package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/types"
)

var rmDaemonCmd = &cobra.Command{
	Use:   "rm-daemon",
	Short: "Remove one daemon from this host",
	Long: `rm-daemon stops and disables a daemon's unit, closes its firewall
ports, and deletes its data dir. Dangerous kinds (mon, osd, prometheus) are
backed up under removed/ instead of deleted, and refuse to run without
--force.`,
	RunE: runRmDaemon,
}

func init() {
	rmDaemonCmd.Flags().String("cluster-id", "", "Cluster id the daemon belongs to (required)")
	rmDaemonCmd.Flags().String("name", "", "Daemon kind (required)")
	rmDaemonCmd.Flags().String("id", "", "Daemon instance id (required)")
	rmDaemonCmd.Flags().Bool("force", false, "Allow removing a dangerous-kind daemon")
	_ = rmDaemonCmd.MarkFlagRequired("cluster-id")
	_ = rmDaemonCmd.MarkFlagRequired("name")
	_ = rmDaemonCmd.MarkFlagRequired("id")
}

func runRmDaemon(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	kind, _ := cmd.Flags().GetString("name")
	id, _ := cmd.Flags().GetString("id")
	force, _ := cmd.Flags().GetBool("force")

	ident := types.Identity{Kind: types.Kind(kind), ID: id}
	ctx := context.Background()
	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.WithComponent("rm-daemon").Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}
	eng := engine.New(host, rt, log.WithDaemon(kind, id))

	if err := eng.RemoveDaemon(ctx, clusterID, ident, engine.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("removing %s: %w", ident, err)
	}
	fmt.Printf("Removed %s\n", ident)
	return nil
}
