package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/runtime"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List daemons deployed on this host",
	Long: `ls scans a cluster's data directory for daemon instances carrying a
complete unit.* artifact set and reports each one's current systemd state,
without requiring the agent to be running.`,
	RunE: runLs,
}

func init() {
	lsCmd.Flags().String("cluster-id", "", "Cluster id to list (required)")
}

func runLs(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	if clusterID == "" {
		return fmt.Errorf("--cluster-id is required")
	}

	ctx := context.Background()
	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.WithComponent("ls").Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}
	eng := engine.New(host, rt, log.WithCluster(clusterID))

	infos, err := discoverDaemons(ctx, host, eng, clusterID)
	if err != nil {
		return fmt.Errorf("listing daemons: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No daemons found")
		return nil
	}

	fmt.Printf("%-20s %-20s %-40s %s\n", "NAME", "STATE", "IMAGE", "CREATED")
	for _, info := range infos {
		fmt.Printf("%-20s %-20s %-40s %s\n",
			info.Identity.String(), info.State, info.Image, info.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}
