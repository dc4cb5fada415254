// Command cephadmd is the host-resident daemon lifecycle agent: it deploys,
// adopts, inspects, and removes the containerized daemons that make up one
// Ceph cluster on this host, bootstraps a new single-host cluster, and runs
// the long-lived agent process that reports state back to a manager.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/log"
)

var (
	// Version information, set via -ldflags at build time.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "cephadmd",
	Short: "Deploy and manage Ceph daemons on this host",
	Long: `cephadmd bootstraps, deploys, adopts, inspects, and removes the
containerized Ceph daemons running on one cluster node, and runs the
host agent that reports their state to a manager.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cephadmd version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime,
	))

	def := config.DefaultHostConfig()
	rootCmd.PersistentFlags().String("image", def.Image, "Container image for Ceph daemons")
	rootCmd.PersistentFlags().Bool("docker", def.Docker, "Use docker instead of podman as the container runtime")
	rootCmd.PersistentFlags().String("data-dir", def.DataDir, "Root directory for daemon data")
	rootCmd.PersistentFlags().String("log-dir", def.LogDir, "Root directory for daemon logs")
	rootCmd.PersistentFlags().String("logrotate-dir", def.LogrotateDir, "logrotate.d directory")
	rootCmd.PersistentFlags().String("sysctl-dir", def.SysctlDir, "sysctl.d directory")
	rootCmd.PersistentFlags().String("unit-dir", def.UnitDir, "systemd unit directory")
	rootCmd.PersistentFlags().String("lock-dir", def.LockDir, "Cluster lock directory")
	rootCmd.PersistentFlags().Bool("verbose", def.Verbose, "Verbose logging")
	rootCmd.PersistentFlags().Float64("timeout", def.Timeout, "Default subprocess timeout in seconds")
	rootCmd.PersistentFlags().Int("retries", def.Retries, "Default retry count for transient failures")
	rootCmd.PersistentFlags().Bool("no-container-init", def.NoContainerInit, "Don't pass --init to container runs")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(adoptCmd)
	rootCmd.AddCommand(rmDaemonCmd)
	rootCmd.AddCommand(rmClusterCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(agentCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// hostConfigFromFlags builds an immutable HostConfig from the root command's
// persistent flags, the way pkg/worker.Config is assembled from CLI input in
// the teacher's cmd/warren/main.go.
func hostConfigFromFlags(cmd *cobra.Command) config.HostConfig {
	image, _ := cmd.Flags().GetString("image")
	docker, _ := cmd.Flags().GetBool("docker")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	logDir, _ := cmd.Flags().GetString("log-dir")
	logrotateDir, _ := cmd.Flags().GetString("logrotate-dir")
	sysctlDir, _ := cmd.Flags().GetString("sysctl-dir")
	unitDir, _ := cmd.Flags().GetString("unit-dir")
	lockDir, _ := cmd.Flags().GetString("lock-dir")
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeout, _ := cmd.Flags().GetFloat64("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	noInit, _ := cmd.Flags().GetBool("no-container-init")

	return config.HostConfig{
		Image:           image,
		Docker:          docker,
		DataDir:         dataDir,
		LogDir:          logDir,
		LogrotateDir:    logrotateDir,
		SysctlDir:       sysctlDir,
		UnitDir:         unitDir,
		LockDir:         lockDir,
		Verbose:         verbose,
		Timeout:         timeout,
		Retries:         retries,
		NoContainerInit: noInit,
	}
}

// runtimeBinary returns "docker" or "podman" per the --docker flag, the same
// resolution pkg/bootstrap.resolveRuntimeBinary applies.
func runtimeBinary(host config.HostConfig) string {
	if host.Docker {
		return "docker"
	}
	return "podman"
}
