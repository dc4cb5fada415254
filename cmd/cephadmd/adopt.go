package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cephadmd/cephadmd/pkg/adopt"
	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/systemd"
	"github.com/cephadmd/cephadmd/pkg/types"
)

var adoptCmd = &cobra.Command{
	Use:   "adopt",
	Short: "Adopt a package-installed legacy daemon into container management",
	Long: `Adopt stops and disables a distro-packaged daemon's systemd unit, moves
its data dir into this host's managed layout, renormalizes ownership and the
kind's on-disk quirks, then deploys it through the normal deploy path so it
ends up indistinguishable from a freshly deployed daemon.

Not every kind supports adoption; unsupported kinds are rejected up front.`,
	RunE: runAdopt,
}

func init() {
	adoptCmd.Flags().String("cluster-id", "", "Cluster id this daemon belongs to (discovered automatically for object-store if omitted)")
	adoptCmd.Flags().String("name", "", "Daemon kind (required, one of the known kinds)")
	adoptCmd.Flags().String("id", "", "Daemon instance id within its kind (required)")
	adoptCmd.Flags().String("legacy-data-dir", "", "The package-installed daemon's existing data directory (required)")
	adoptCmd.Flags().String("legacy-unit", "", "The distro package's systemd unit name for this daemon")
	adoptCmd.Flags().String("legacy-device", "", "Block device to LVM-tag-scan for cluster id discovery (object-store only, offline fallback)")
	adoptCmd.Flags().StringSlice("config-file", nil, "NAME=PATH pairs materialized under the daemon's data dir")
	adoptCmd.Flags().Bool("force", false, "Start the adopted daemon even if the legacy unit was stopped")
	_ = adoptCmd.MarkFlagRequired("name")
	_ = adoptCmd.MarkFlagRequired("id")
	_ = adoptCmd.MarkFlagRequired("legacy-data-dir")
}

func runAdopt(cmd *cobra.Command, args []string) error {
	host := hostConfigFromFlags(cmd)
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	kind, _ := cmd.Flags().GetString("name")
	id, _ := cmd.Flags().GetString("id")
	legacyDataDir, _ := cmd.Flags().GetString("legacy-data-dir")
	legacyUnit, _ := cmd.Flags().GetString("legacy-unit")
	legacyDevice, _ := cmd.Flags().GetString("legacy-device")
	configFiles, _ := cmd.Flags().GetStringSlice("config-file")
	force, _ := cmd.Flags().GetBool("force")

	ctx := context.Background()
	logger := log.WithDaemon(kind, id)

	if clusterID == "" {
		discovered, err := discoverClusterID(ctx, legacyDataDir, legacyDevice)
		if err != nil {
			return fmt.Errorf("cluster id not supplied and discovery failed: %w", err)
		}
		logger.Info().Str("cluster_id", discovered).Msg("discovered cluster id for adopt")
		clusterID = discovered
	}

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

	ident := types.Identity{Kind: types.Kind(kind), ID: id}
	cfg := &types.Config{Files: files}

	wasRunning, err := legacyUnitWasRunning(ctx, legacyUnit)
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine whether legacy unit was running, assuming stopped")
	}

	rt := runtime.New(runtimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		logger.Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}
	eng := engine.New(host, rt, logger)

	result, err := eng.AdoptDaemon(ctx, clusterID, ident, cfg, engine.AdoptOptions{
		LegacyDataDir: legacyDataDir,
		LegacyUnit:    legacyUnit,
		WasRunning:    wasRunning,
		Force:         force,
	})
	if err != nil {
		return fmt.Errorf("adopt %s failed: %w", ident, err)
	}

	fmt.Printf("Adopted %s into cluster %s\n", ident, clusterID)
	fmt.Printf("  Data dir: %s\n", result.DaemonDir)
	fmt.Printf("  Unit:     %s\n", result.UnitName)
	fmt.Printf("  State:    %s\n", result.Info.State)
	return nil
}

// discoverClusterID reads <legacyDataDir>/fsid first; if that file can't be
// read it falls back to an LVM tag scan of the named device, or of every LV
// on the host if none was given. Simple-osd JSON files are not consulted.
func discoverClusterID(ctx context.Context, legacyDataDir, device string) (string, error) {
	if fsid, err := os.ReadFile(legacyDataDir + "/fsid"); err == nil {
		return strings.TrimSpace(string(fsid)), nil
	}

	if device != "" {
		tags, err := adopt.ScanDevice(ctx, device)
		if err != nil {
			return "", err
		}
		fsid, ok := tags.ClusterFSID()
		if !ok {
			return "", fmt.Errorf("device %s carries no ceph.cluster_fsid tag", device)
		}
		return fsid, nil
	}

	_, tags, err := adopt.ScanAllDevices(ctx)
	if err != nil {
		return "", err
	}
	fsid, _ := tags.ClusterFSID()
	return fsid, nil
}

// legacyUnitWasRunning checks the legacy unit's active state before it gets
// stopped, so AdoptDaemon knows whether to start the replacement afterward.
func legacyUnitWasRunning(ctx context.Context, unit string) (bool, error) {
	if unit == "" {
		return false, nil
	}
	return systemd.NewController().IsActive(ctx, unit), nil
}
