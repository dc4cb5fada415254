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

var rmClusterCmd = &cobra.Command{
	Use:   "rm-cluster",
	Short: "Remove every daemon belonging to a cluster on this host",
	Long: `rm-cluster discovers every daemon deployed under a cluster's data
directory and removes them in turn. Unless --force is given, it refuses to
remove anything while an admin keyring is still present (spec.md's "don't
silently destroy a live cluster" safeguard).`,
	RunE: runRmCluster,
}

func init() {
	rmClusterCmd.Flags().String("cluster-id", "", "Cluster id to remove (required)")
	rmClusterCmd.Flags().Bool("force", false, "Remove even if an admin keyring is still present")
	rmClusterCmd.Flags().Bool("zap-osds", false, "Destroy each object store daemon's underlying LVM volume")
	rmClusterCmd.Flags().Bool("keep-logs", false, "Preserve the cluster's log directory and logrotate fragment")
	_ = rmClusterCmd.MarkFlagRequired("cluster-id")
}

func runRmCluster(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	force, _ := cmd.Flags().GetBool("force")
	zapOSDs, _ := cmd.Flags().GetBool("zap-osds")
	keepLogs, _ := cmd.Flags().GetBool("keep-logs")

	ctx := context.Background()
	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.WithComponent("rm-cluster").Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}
	eng := engine.New(host, rt, log.WithCluster(clusterID))

	infos, err := discoverDaemons(ctx, host, eng, clusterID)
	if err != nil {
		return fmt.Errorf("discovering cluster daemons: %w", err)
	}

	idents := make([]types.Identity, len(infos))
	for i, info := range infos {
		idents[i] = info.Identity
	}

	opt := engine.RemoveClusterOptions{Force: force, ZapOSDs: zapOSDs, KeepLogs: keepLogs}
	if err := eng.RemoveCluster(ctx, clusterID, idents, opt); err != nil {
		return fmt.Errorf("removing cluster %s: %w", clusterID, err)
	}
	fmt.Printf("Removed cluster %s (%d daemons)\n", clusterID, len(idents))
	return nil
}
