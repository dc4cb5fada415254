package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cephadmd/cephadmd/pkg/composer"
	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/layout"
	"github.com/cephadmd/cephadmd/pkg/procexec"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/systemd"
	"github.com/cephadmd/cephadmd/pkg/types"
)

// AdoptOptions carries the caller-resolved legacy-daemon facts adopt needs;
// cluster id discovery itself (the legacy data dir's fsid file, then
// pkg/adopt's offline LVM tag scan; simple-osd JSON files are not read)
// happens before AdoptDaemon is called,
// since it depends on which kind is being adopted and where its legacy data
// lives, not on anything the engine itself tracks.
type AdoptOptions struct {
	// LegacyDataDir is the package-installed daemon's existing data
	// directory, whose contents are moved (not copied) into the new layout.
	LegacyDataDir string
	// LegacyUnit is the distro package's systemd unit name for this daemon
	// (e.g. "ceph-osd@3", "ceph-mon@node1"), stopped and disabled before the
	// data dir is touched.
	LegacyUnit string
	// WasRunning forces the adopted unit to start even if Force is false,
	// matching spec.md §4.7's "start iff the legacy unit was running".
	WasRunning bool
	Force      bool
}

// AdoptDaemon converts a package-installed daemon into the container-managed
// layout: stop the legacy unit, move its data dir into place, renormalize
// ownership and the kind-specific on-disk quirks, then deploy through the
// same composer/layout/systemd/firewall path DeployDaemon uses so the
// resulting daemon is indistinguishable from a freshly deployed one.
func (e *Engine) AdoptDaemon(ctx context.Context, clusterID string, ident types.Identity, cfg *types.Config, opt AdoptOptions) (*DeployResult, error) {
	d, err := registry.Lookup(ident.Kind)
	if err != nil {
		return nil, err
	}
	if !d.AdoptSupported {
		return nil, &errs.AdoptUnsupported{Kind: string(ident.Kind)}
	}

	if opt.LegacyUnit != "" {
		if _, err := procexec.Run(ctx, 15*time.Second, nil, "systemctl", "disable", "--now", opt.LegacyUnit); err != nil {
			e.log.Warn().Err(err).Str("unit", opt.LegacyUnit).Msg("stopping legacy unit failed, continuing adoption")
		}
	}

	daemonDir := e.Layout.DaemonDir(clusterID, ident.String())
	if err := e.moveLegacyData(opt.LegacyDataDir, daemonDir); err != nil {
		return nil, err
	}

	image := e.Host.ResolveImage()
	uid, gid, err := e.resolveUIDGID(ctx, ident.Kind, image)
	if err != nil {
		return nil, err
	}
	if err := renormalizeOwnership(daemonDir, uid, gid); err != nil {
		return nil, err
	}
	if err := renormalizeKindQuirks(ident.Kind, daemonDir); err != nil {
		return nil, err
	}

	if err := registry.Validate(ident.Kind, cfg); err != nil {
		return nil, err
	}

	extraArgs, err := registry.ExtraArgs(ident.Kind, ident, cfg)
	if err != nil {
		return nil, err
	}
	args := append(append([]string{}, extraArgs...), cfg.Args...)

	envs := map[string]string{}
	for k, v := range d.Envs {
		envs[k] = v
	}

	vecs, err := composer.Compose(d, composer.Options{
		Runtime:   e.Runtime,
		Image:     image,
		Ident:     ident,
		ClusterID: clusterID,
		DataDir:   daemonDir,
		Mounts:    resolveMounts(d, cfg, daemonDir),
		Envs:      envs,
		ExtraArgs: args,
		Flags: composer.Flags{
			Privileged:  cfg.Privileged,
			AllowPtrace: cfg.AllowPtrace,
			NetHost:     true,
		},
	})
	if err != nil {
		return nil, err
	}
	vecs, err = e.wrapKindSpecific(d, ident, daemonDir, image, vecs, false)
	if err != nil {
		return nil, err
	}

	meta, err := json.Marshal(map[string]any{
		"image": image, "kind": string(ident.Kind), "id": ident.ID,
		"cluster_id": clusterID, "adopted": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling unit.meta: %w", err)
	}

	art := layout.UnitArtifacts{
		Run:      shellJoin(vecs.Run),
		Stop:     shellJoin(vecs.Stop),
		Poststop: shellJoin(vecs.Remove),
		Image:    image,
		MetaJSON: meta,
	}
	if err := e.Layout.WriteUnitArtifacts(daemonDir, art, uid, gid); err != nil {
		return nil, err
	}

	unitName := systemd.UnitName(clusterID, string(ident.Kind), ident.ID)
	unitText, err := systemd.RenderDaemonUnit(systemd.UnitParams{
		ClusterID:    clusterID,
		Kind:         string(ident.Kind),
		ID:           ident.ID,
		DataDir:      daemonDir,
		DockerFamily: e.Runtime.IsDockerFamily(),
		Forking:      e.Runtime.SupportsCgroupSplit(),
	})
	if err != nil {
		return nil, err
	}
	unitPath := filepath.Join(e.Host.UnitDir, unitName)
	if err := layout.WriteFileAtomic(unitPath, []byte(unitText), 0o644, -1, -1); err != nil {
		return nil, err
	}

	targetName := systemd.ClusterTargetName(clusterID)
	targetText, err := systemd.RenderClusterTarget(clusterID)
	if err != nil {
		return nil, err
	}
	if err := layout.WriteFileAtomic(filepath.Join(e.Host.UnitDir, targetName), []byte(targetText), 0o644, -1, -1); err != nil {
		return nil, err
	}
	if err := e.Systemd.DaemonReload(ctx); err != nil {
		return nil, err
	}
	if err := e.openFirewall(ctx, cfg, d); err != nil {
		return nil, err
	}

	if err := e.Systemd.EnableNow(ctx, unitName); err != nil {
		return nil, err
	}
	if !opt.WasRunning && !opt.Force {
		if err := e.Systemd.Stop(ctx, unitName); err != nil {
			e.log.Warn().Err(err).Msg("stopping adopted unit to match legacy daemon's stopped state failed")
		}
	}

	info := types.DaemonInfo{
		Identity: ident, ClusterID: clusterID,
		State: e.stateOf(ctx, unitName), Enabled: e.Systemd.IsEnabled(ctx, unitName),
		Image: image, Created: time.Now(), Configured: time.Now(),
	}
	return &DeployResult{Info: info, DaemonDir: daemonDir, UnitName: unitName, Redeployed: false}, nil
}

// moveLegacyData relocates legacyDir's contents into daemonDir (spec.md
// §4.7 step 3: "move, not copy") by renaming the directory as a whole.
// Mount points are not detected: a legacyDir that is a mount point is not
// unmounted first.
func (e *Engine) moveLegacyData(legacyDir, daemonDir string) error {
	if legacyDir == "" {
		return layout.EnsureDir(daemonDir, 0o750, -1, -1)
	}
	if err := layout.EnsureDir(filepath.Dir(daemonDir), 0o750, -1, -1); err != nil {
		return err
	}
	if _, err := os.Stat(daemonDir); err == nil {
		return fmt.Errorf("adopt target %s already exists", daemonDir)
	}
	if err := os.Rename(legacyDir, daemonDir); err != nil {
		return fmt.Errorf("moving legacy data %s -> %s: %w", legacyDir, daemonDir, err)
	}
	return nil
}

// renormalizeOwnership re-chowns every file and directory under daemonDir to
// the resolved uid/gid, the bulk recursive step spec.md §4.7 step 4 names.
func renormalizeOwnership(daemonDir string, uid, gid int) error {
	if uid < 0 || gid < 0 {
		return nil
	}
	return filepath.Walk(daemonDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(path, uid, gid)
	})
}

// renormalizeKindQuirks applies the two kind-specific renames spec.md §4.7
// step 4 names: monitor leveldb files get the sst extension ceph-mon
// expects, and an object-store's legacy "simple" sidecar JSON is marked
// adopted so ceph-volume never reconsiders it for simple-mode activation.
func renormalizeKindQuirks(kind types.Kind, daemonDir string) error {
	switch kind {
	case types.KindMon:
		entries, err := os.ReadDir(daemonDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".ldb") {
				old := filepath.Join(daemonDir, entry.Name())
				newName := filepath.Join(daemonDir, strings.TrimSuffix(entry.Name(), ".ldb")+".sst")
				if err := os.Rename(old, newName); err != nil {
					return fmt.Errorf("renaming %s to .sst: %w", old, err)
				}
			}
		}
	case types.KindOsd:
		entries, err := os.ReadDir(daemonDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".json") && !strings.Contains(entry.Name(), "adopted-by-cephadm") {
				old := filepath.Join(daemonDir, entry.Name())
				newName := old + ".adopted-by-cephadm"
				if err := os.Rename(old, newName); err != nil {
					return fmt.Errorf("renaming simple-osd sidecar %s: %w", old, err)
				}
			}
		}
	}
	return nil
}
