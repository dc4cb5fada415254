package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy (or reconfigure) one daemon on this host",
	Long: fmt.Sprintf(`Deploy materializes a daemon's on-disk data dir, systemd
unit, and firewall rules, then starts it. Run again with --reconfig to
rewrite an existing daemon's config without re-running its one-time setup.

Known kinds: %s`, kindsHelp()),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().String("cluster-id", "", "Cluster id this daemon belongs to (required)")
	deployCmd.Flags().String("name", "", "Daemon kind (required, one of the known kinds)")
	deployCmd.Flags().String("id", "", "Daemon instance id within its kind (required)")
	deployCmd.Flags().StringSlice("config-file", nil, "NAME=PATH pairs materialized under the daemon's data dir")
	deployCmd.Flags().StringSlice("extra-args", nil, "Extra arguments appended to the daemon's entrypoint")
	deployCmd.Flags().IntSlice("tcp-port", nil, "TCP ports to declare/open for this daemon")
	deployCmd.Flags().Bool("reconfig", false, "Reconfigure an existing daemon instead of a fresh deploy")
	deployCmd.Flags().Bool("allow-ptrace", false, "Allow SYS_PTRACE in the daemon's container")
	deployCmd.Flags().Int64("memory-request", 0, "Memory request in bytes")
	deployCmd.Flags().Int64("memory-limit", 0, "Memory limit in bytes")
	_ = deployCmd.MarkFlagRequired("cluster-id")
	_ = deployCmd.MarkFlagRequired("name")
	_ = deployCmd.MarkFlagRequired("id")
}

func kindsHelp() string {
	names := make([]string, 0, len(registry.Kinds()))
	for _, k := range registry.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	kind, _ := cmd.Flags().GetString("name")
	id, _ := cmd.Flags().GetString("id")
	configFiles, _ := cmd.Flags().GetStringSlice("config-file")
	extraArgs, _ := cmd.Flags().GetStringSlice("extra-args")
	tcpPorts, _ := cmd.Flags().GetIntSlice("tcp-port")
	reconfig, _ := cmd.Flags().GetBool("reconfig")
	allowPtrace, _ := cmd.Flags().GetBool("allow-ptrace")
	memReq, _ := cmd.Flags().GetInt64("memory-request")
	memLimit, _ := cmd.Flags().GetInt64("memory-limit")

	files := make(map[string]string, len(configFiles))
	for _, kv := range configFiles {
		name, path, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--config-file %q must be NAME=PATH", kv)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading --config-file %s: %w", path, err)
		}
		files[name] = string(data)
	}

	ports := make([]int, len(tcpPorts))
	copy(ports, tcpPorts)

	ident := types.Identity{Kind: types.Kind(kind), ID: id}
	cfg := &types.Config{
		Files:         files,
		Args:          extraArgs,
		Ports:         ports,
		Privileged:    false,
		AllowPtrace:   allowPtrace,
		MemoryRequest: memReq,
		MemoryLimit:   memLimit,
	}
	flags := types.DeployFlags{
		Reconfig:      reconfig,
		AllowPtrace:   allowPtrace,
		TCPPorts:      ports,
		MemoryRequest: memReq,
		MemoryLimit:   memLimit,
	}

	ctx := context.Background()
	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.WithComponent("deploy").Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}
	eng := engine.New(host, rt, log.WithDaemon(kind, id))

	result, err := eng.DeployDaemon(ctx, clusterID, ident, cfg, flags)
	if err != nil {
		return fmt.Errorf("deploy %s failed: %w", ident, err)
	}

	verb := "Deployed"
	if result.Redeployed {
		verb = "Reconfigured"
	}
	fmt.Printf("%s %s\n", verb, ident)
	fmt.Printf("  Data dir: %s\n", result.DaemonDir)
	fmt.Printf("  Unit:     %s\n", result.UnitName)
	fmt.Printf("  State:    %s\n", result.Info.State)
	return nil
}
