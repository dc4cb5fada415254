package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/bootstrap"
	"github.com/cephadmd/cephadmd/pkg/log"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a new single-host cluster",
	Long: `Bootstrap initializes a brand new Ceph cluster on this host: it
generates a cluster id, deploys the first monitor and manager, provisions
an admin keyring, and optionally enables the dashboard and an SSH key for
later host additions.`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().String("mon-ip", "", "Monitor bind address (bare IP, ip:port, or address vector)")
	bootstrapCmd.Flags().String("cluster-network", "", "Cluster network CIDR")
	bootstrapCmd.Flags().Bool("skip-pull", false, "Don't pull the daemon image before bootstrapping")
	bootstrapCmd.Flags().Bool("allow-mismatched-release", false, "Proceed even if the image's Ceph release doesn't match what's expected")
	bootstrapCmd.Flags().Bool("skip-mon-network", false, "Don't infer/apply the monitor's public network")
	bootstrapCmd.Flags().Bool("skip-dashboard", false, "Don't enable the dashboard module")
	bootstrapCmd.Flags().String("ssh-user", "", "User to provision an authorized_keys entry for")
	bootstrapCmd.Flags().String("ssh-public-key", "", "Path to the SSH public key to provision")
	bootstrapCmd.Flags().String("apply-spec", "", "Path to a restricted-YAML spec to apply after bootstrap")
	bootstrapCmd.Flags().Bool("allow-overwrite", false, "Bootstrap even if this host already looks bootstrapped")
	bootstrapCmd.Flags().String("expected-release", "", "Ceph release name the image is expected to match")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	monIP, _ := cmd.Flags().GetString("mon-ip")
	clusterNetwork, _ := cmd.Flags().GetString("cluster-network")
	skipPull, _ := cmd.Flags().GetBool("skip-pull")
	allowMismatch, _ := cmd.Flags().GetBool("allow-mismatched-release")
	skipMonNetwork, _ := cmd.Flags().GetBool("skip-mon-network")
	skipDashboard, _ := cmd.Flags().GetBool("skip-dashboard")
	sshUser, _ := cmd.Flags().GetString("ssh-user")
	sshPubKey, _ := cmd.Flags().GetString("ssh-public-key")
	applySpec, _ := cmd.Flags().GetString("apply-spec")
	allowOverwrite, _ := cmd.Flags().GetBool("allow-overwrite")
	expectedRelease, _ := cmd.Flags().GetString("expected-release")

	opt := bootstrap.Options{
		MonIP:                  monIP,
		ClusterNetwork:         clusterNetwork,
		SkipPull:               skipPull,
		AllowMismatchedRelease: allowMismatch,
		SkipMonNetwork:         skipMonNetwork,
		SkipDashboard:          skipDashboard,
		SSHUser:                sshUser,
		SSHPublicKeyPath:       sshPubKey,
		ApplySpecPath:          applySpec,
		AllowOverwrite:         allowOverwrite,
		ExpectedRelease:        expectedRelease,
	}

	result, err := bootstrap.Bootstrap(context.Background(), host, opt, log.WithComponent("bootstrap"))
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	fmt.Println("Cluster bootstrapped successfully")
	fmt.Printf("  Cluster ID: %s\n", result.ClusterID)
	fmt.Printf("  Monitor:    mon.%s\n", result.MonID)
	fmt.Printf("  Manager:    mgr.%s\n", result.MgrID)
	if result.DashboardURL != "" {
		fmt.Printf("  Dashboard:  %s\n", result.DashboardURL)
		fmt.Printf("  User:       %s\n", result.DashboardUser)
		fmt.Printf("  Password:   %s\n", result.DashboardPassword)
	}
	fmt.Println()
	fmt.Println("Admin keyring:")
	fmt.Println(result.AdminKeyring)
	return nil
}
