// Package engine is the deploy/adopt/remove state machine spec.md §4.7
// describes. It is the one place that wires the registry, composer, layout
// manager, systemd collaborator and firewall collaborator together into the
// operations the CLI and the bootstrap orchestrator call; each collaborator
// stays ignorant of the others, the same separation pkg/deploy and
// pkg/reconciler draw around pkg/manager.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cephadmd/cephadmd/pkg/composer"
	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/firewall"
	"github.com/cephadmd/cephadmd/pkg/layout"
	"github.com/cephadmd/cephadmd/pkg/metrics"
	"github.com/cephadmd/cephadmd/pkg/procexec"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/systemd"
	"github.com/cephadmd/cephadmd/pkg/types"
)

// Engine holds the collaborators one host needs to deploy, inspect, and
// remove daemons. It carries no cluster-specific state: every method takes
// the cluster id and identity it operates on explicitly.
type Engine struct {
	Host     config.HostConfig
	Runtime  runtime.Runtime
	Layout   *layout.Manager
	Systemd  *systemd.Controller
	Firewall *firewall.Manager
	log      zerolog.Logger
}

// New builds an Engine from a resolved host config and container runtime.
func New(host config.HostConfig, rt runtime.Runtime, log zerolog.Logger) *Engine {
	return &Engine{
		Host:     host,
		Runtime:  rt,
		Layout:   layout.New(host.DataDir),
		Systemd:  systemd.NewController(),
		Firewall: firewall.New(log),
		log:      log,
	}
}

// DeployResult is what DeployDaemon reports back to the caller.
type DeployResult struct {
	Info       types.DaemonInfo
	DaemonDir  string
	UnitName   string
	Redeployed bool
}

// DeployDaemon validates cfg against the kind's descriptor, resolves the
// image and uid/gid, composes the run/stop/poststop vectors, materializes
// the on-disk layout and systemd unit, opens any declared ports, and starts
// the unit. Calling it again for an existing daemon is --reconfig: data
// dir contents are rewritten but unit.created is untouched.
func (e *Engine) DeployDaemon(ctx context.Context, clusterID string, ident types.Identity, cfg *types.Config, flags types.DeployFlags) (result *DeployResult, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.DeployDuration, string(ident.Kind))
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.DeploysTotal.WithLabelValues(string(ident.Kind), outcome).Inc()
	}()

	d, err := registry.Lookup(ident.Kind)
	if err != nil {
		return nil, err
	}
	if err := registry.Validate(ident.Kind, cfg); err != nil {
		return nil, err
	}

	daemonDir := e.Layout.DaemonDir(clusterID, ident.String())
	existed, err := layout.HasUnitArtifacts(daemonDir)
	if err != nil {
		return nil, err
	}
	if flags.Reconfig && !existed {
		return nil, &errs.MissingData{Path: daemonDir}
	}

	image := e.Host.ResolveImage()

	var uid, gid int
	if d.RunsViaUnitOnly {
		uid, gid = -1, -1
	} else {
		uid, gid, err = e.resolveUIDGID(ctx, ident.Kind, image)
		if err != nil {
			return nil, err
		}
	}

	if err := e.checkPortsFree(cfg, d); err != nil {
		return nil, err
	}

	var vecs types.RunVectors
	if d.RunsViaUnitOnly {
		// The agent kind has no container to run: it re-executes this same
		// binary in "agent run" mode under the systemd unit directly
		// (spec.md §4.7 step 7), skipping the composer entirely.
		vecs, err = agentUnitVectors(daemonDir)
		if err != nil {
			return nil, err
		}
	} else {
		extraArgs, err := registry.ExtraArgs(ident.Kind, ident, cfg)
		if err != nil {
			return nil, err
		}
		args := append(append([]string{}, extraArgs...), cfg.Args...)

		envs := map[string]string{}
		for k, v := range d.Envs {
			envs[k] = v
		}

		opt := composer.Options{
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
				AllowPtrace: cfg.AllowPtrace || flags.AllowPtrace,
				NetHost:     true,
			},
		}
		vecs, err = composer.Compose(d, opt)
		if err != nil {
			return nil, err
		}
		vecs, err = e.wrapKindSpecific(d, ident, daemonDir, image, vecs, !existed)
		if err != nil {
			return nil, err
		}
	}

	if err := layout.EnsureDir(daemonDir, 0o750, uid, gid); err != nil {
		return nil, err
	}
	if err := layout.WriteFiles(daemonDir, cfg.Files, uid, gid); err != nil {
		return nil, err
	}
	if keyring, ok := cfg.Files["keyring"]; ok {
		if err := layout.WriteFileAtomic(filepath.Join(daemonDir, "keyring"), []byte(keyring), 0o600, uid, gid); err != nil {
			return nil, err
		}
	}

	meta, err := json.Marshal(map[string]any{
		"image":      image,
		"kind":       string(ident.Kind),
		"id":         ident.ID,
		"cluster_id": clusterID,
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
	if err := e.applySysctls(ctx, d, clusterID, ident); err != nil {
		e.log.Warn().Err(err).Msg("applying sysctl fragment failed, continuing")
	}
	if err := e.writeLogrotateFragment(clusterID); err != nil {
		e.log.Warn().Err(err).Msg("writing logrotate fragment failed, continuing")
	}
	if err := e.enableNowWithCgroupCleanup(ctx, clusterID, unitName); err != nil {
		return nil, err
	}

	info := types.DaemonInfo{
		Identity:   ident,
		ClusterID:  clusterID,
		State:      e.stateOf(ctx, unitName),
		Enabled:    e.Systemd.IsEnabled(ctx, unitName),
		Image:      image,
		Created:    time.Now(),
		Configured: time.Now(),
	}

	return &DeployResult{Info: info, DaemonDir: daemonDir, UnitName: unitName, Redeployed: existed}, nil
}

// resolveUIDGID uses the descriptor's fixed uid/gid if declared, otherwise
// runs the one-shot stat helper container against a small set of candidate
// paths inside the image.
func (e *Engine) resolveUIDGID(ctx context.Context, kind types.Kind, image string) (uid, gid int, err error) {
	if uid, gid, fixed := registry.ResolveUID(kind); fixed {
		return uid, gid, nil
	}

	candidates := []string{"/var/lib/ceph", "/etc/ceph", "/"}
	var lastErr error
	for _, path := range candidates {
		args := composer.StatHelper(e.Runtime, image, path)
		res, err := procexec.Run(ctx, 30*time.Second, nil, args[0], args[1:]...)
		if err != nil {
			lastErr = fmt.Errorf("stat helper against %s: %w", path, err)
			continue
		}
		return composer.ParseUIDGID(res.Stdout)
	}
	return 0, 0, fmt.Errorf("uid/gid discovery failed for every candidate path: %w", lastErr)
}

func (e *Engine) checkPortsFree(cfg *types.Config, d *types.Descriptor) error {
	ports := append(append([]int{}, d.DefaultPorts...), cfg.Ports...)
	for _, p := range ports {
		if portBound(p) {
			return &errs.PortBusy{Port: p}
		}
	}
	return nil
}

func (e *Engine) openFirewall(ctx context.Context, cfg *types.Config, d *types.Descriptor) error {
	ports := append(append([]int{}, d.DefaultPorts...), cfg.Ports...)
	specs := make([]firewall.PortSpec, 0, len(ports))
	for _, p := range ports {
		specs = append(specs, firewall.PortSpec{Port: p, Protocol: "tcp"})
	}
	return e.Firewall.OpenPorts(ctx, specs)
}

// applySysctls writes this daemon's descriptor-declared sysctl directives to
// its own fragment under the host's sysctl.d directory and loads it with
// "sysctl -p", the named-fragment-per-daemon layout RemoveCluster's
// removeSysctlFragments glob matches on cleanup. Kinds without Sysctls (the
// common case) are a no-op.
func (e *Engine) applySysctls(ctx context.Context, d *types.Descriptor, clusterID string, ident types.Identity) error {
	if len(d.Sysctls) == 0 {
		return nil
	}
	var b strings.Builder
	for k, v := range d.Sysctls {
		fmt.Fprintf(&b, "%s = %s\n", k, v)
	}
	path := filepath.Join(e.Host.SysctlDir, fmt.Sprintf("90-cephadmd-%s-%s.conf", clusterID, ident.String()))
	if err := layout.WriteFileAtomic(path, []byte(b.String()), 0o644, -1, -1); err != nil {
		return err
	}
	_, err := procexec.Run(ctx, 10*time.Second, nil, "sysctl", "-p", path)
	return err
}

// writeLogrotateFragment (re)writes the cluster-wide logrotate.d fragment
// covering every daemon's log dir. It's idempotent and cheap enough to
// overwrite on every deploy rather than tracked as a one-time step.
func (e *Engine) writeLogrotateFragment(clusterID string) error {
	path := filepath.Join(e.Host.LogrotateDir, "cephadmd-"+clusterID)
	pattern := filepath.Join(e.Host.LogDir, clusterID, "*", "*.log")
	content := fmt.Sprintf(`%s {
    rotate 7
    daily
    compress
    missingok
    notifempty
}
`, pattern)
	return layout.WriteFileAtomic(path, []byte(content), 0o644, -1, -1)
}

// State reports the observed lifecycle state of one daemon.
func (e *Engine) State(ctx context.Context, clusterID string, ident types.Identity) types.DaemonState {
	unitName := systemd.UnitName(clusterID, string(ident.Kind), ident.ID)
	daemonDir := e.Layout.DaemonDir(clusterID, ident.String())
	if _, err := os.Stat(daemonDir); os.IsNotExist(err) {
		return types.StateAbsent
	}
	return e.stateOf(ctx, unitName)
}

func (e *Engine) stateOf(ctx context.Context, unitName string) types.DaemonState {
	if e.Systemd.IsActive(ctx, unitName) {
		return types.StateDeployedRunning
	}
	if e.Systemd.IsEnabled(ctx, unitName) {
		return types.StateDeployedStopped
	}
	return types.StateDeployedFailed
}

// RemoveOptions controls RemoveDaemon's backup-vs-delete and force behavior.
type RemoveOptions struct {
	Force bool
}

// RemoveDaemon stops and disables one daemon's unit, closes its firewall
// ports, and then either renames its data dir into the cluster's removed/
// backup directory (dangerous kinds, spec.md §4.7) or deletes it outright.
// Dangerous kinds without Force fail closed.
func (e *Engine) RemoveDaemon(ctx context.Context, clusterID string, ident types.Identity, opt RemoveOptions) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RemoveDuration, string(ident.Kind))

	if ident.Kind.IsDangerous() && !opt.Force {
		return &errs.DangerousWithoutForce{Kind: string(ident.Kind)}
	}

	d, err := registry.Lookup(ident.Kind)
	if err != nil {
		return err
	}

	unitName := systemd.UnitName(clusterID, string(ident.Kind), ident.ID)
	if err := e.Systemd.DisableNow(ctx, unitName); err != nil {
		return err
	}

	daemonDir := e.Layout.DaemonDir(clusterID, ident.String())
	if _, err := os.Stat(daemonDir); err == nil {
		cfg := &types.Config{}
		if err := e.closeFirewallBestEffort(ctx, cfg, d); err != nil {
			e.log.Warn().Err(err).Msg("closing firewall ports during remove failed, continuing")
		}

		if ident.Kind.IsDangerous() {
			removedDir := e.Layout.RemovedDir(clusterID)
			if err := layout.EnsureDir(removedDir, 0o750, -1, -1); err != nil {
				return err
			}
			dest := filepath.Join(removedDir, ident.String()+"."+time.Now().UTC().Format("20060102-150405"))
			if err := os.Rename(daemonDir, dest); err != nil {
				return fmt.Errorf("backing up %s to %s: %w", daemonDir, dest, err)
			}
		} else {
			if err := os.RemoveAll(daemonDir); err != nil {
				return fmt.Errorf("removing %s: %w", daemonDir, err)
			}
		}
	}

	unitPath := filepath.Join(e.Host.UnitDir, unitName)
	_ = os.Remove(unitPath)
	return e.Systemd.DaemonReload(ctx)
}

// enableNowWithCgroupCleanup enables and starts unitName, retrying once
// after clearing its stale cgroup slice if the first attempt fails
// (spec.md §4.4's cleanup-on-start-failure pass).
func (e *Engine) enableNowWithCgroupCleanup(ctx context.Context, clusterID, unitName string) error {
	err := e.Systemd.EnableNow(ctx, unitName)
	if err == nil {
		return nil
	}
	if cleanupErr := e.Systemd.CleanupFailedCgroup(clusterID, unitName); cleanupErr != nil {
		e.log.Warn().Err(cleanupErr).Msg("cleaning up stale cgroup after failed start failed")
		return err
	}
	return e.Systemd.EnableNow(ctx, unitName)
}

func (e *Engine) closeFirewallBestEffort(ctx context.Context, cfg *types.Config, d *types.Descriptor) error {
	ports := append(append([]int{}, d.DefaultPorts...), cfg.Ports...)
	specs := make([]firewall.PortSpec, 0, len(ports))
	for _, p := range ports {
		specs = append(specs, firewall.PortSpec{Port: p, Protocol: "tcp"})
	}
	return e.Firewall.ClosePorts(ctx, specs)
}

// RemoveClusterOptions controls RemoveCluster's behavior (spec.md §4.7's
// "remove-cluster(id, zap-osds, keep-logs)" contract).
type RemoveClusterOptions struct {
	Force bool

	// ZapOSDs destroys each object-store daemon's underlying LVM volume
	// before its data dir is removed, instead of merely disabling the unit.
	ZapOSDs bool

	// KeepLogs preserves the cluster's log directory and logrotate fragment
	// instead of deleting them along with everything else.
	KeepLogs bool
}

// hostCephConf is the well-known system-wide ceph.conf path a host-level
// client toolchain reads, distinct from any one cluster's own data-dir
// config.
const hostCephConf = "/etc/ceph/ceph.conf"

// RemoveCluster removes every daemon known to belong to clusterID, zapping
// OSD volumes first if requested, then deletes the cluster's data dir,
// logrotate and sysctl fragments (unless KeepLogs), and unit files. It
// refuses to proceed if an admin keyring is still present under the
// cluster's mon data dir unless Force is set, since that keyring grants
// full cluster access and is the strongest signal a human still wants this
// host around.
func (e *Engine) RemoveCluster(ctx context.Context, clusterID string, idents []types.Identity, opt RemoveClusterOptions) error {
	if !opt.Force {
		if present, err := e.adminKeyringPresent(clusterID); err != nil {
			return err
		} else if present {
			return &errs.DangerousWithoutForce{Kind: "cluster (admin keyring present)"}
		}
	}

	if opt.ZapOSDs {
		for _, ident := range idents {
			if ident.Kind != types.KindOsd {
				continue
			}
			if err := e.zapOSD(ctx, ident); err != nil {
				e.log.Warn().Err(err).Str("daemon", ident.String()).Msg("zapping OSD volume failed, continuing")
			}
		}
	}

	for _, ident := range idents {
		if err := e.RemoveDaemon(ctx, clusterID, ident, RemoveOptions{Force: true}); err != nil {
			e.log.Warn().Err(err).Str("daemon", ident.String()).Msg("failed to remove daemon during cluster teardown, continuing")
		}
	}

	if err := e.removeSysctlFragments(clusterID); err != nil {
		e.log.Warn().Err(err).Msg("removing cluster sysctl fragments failed, continuing")
	}

	if !opt.KeepLogs {
		logDir := filepath.Join(e.Host.LogDir, clusterID)
		if err := os.RemoveAll(logDir); err != nil {
			e.log.Warn().Err(err).Str("path", logDir).Msg("removing cluster log dir failed, continuing")
		}
		logrotatePath := filepath.Join(e.Host.LogrotateDir, "cephadmd-"+clusterID)
		_ = os.Remove(logrotatePath)
	}

	clusterDir := filepath.Join(e.Host.DataDir, clusterID)
	if err := os.RemoveAll(clusterDir); err != nil {
		return fmt.Errorf("removing cluster dir %s: %w", clusterDir, err)
	}

	targetPath := filepath.Join(e.Host.UnitDir, systemd.ClusterTargetName(clusterID))
	_ = os.Remove(targetPath)

	if referencesCluster, err := hostCephConfReferencesCluster(clusterID); err != nil {
		e.log.Warn().Err(err).Msg("checking host ceph.conf for this cluster's fsid failed, leaving it in place")
	} else if referencesCluster {
		if err := os.Remove(hostCephConf); err != nil && !os.IsNotExist(err) {
			e.log.Warn().Err(err).Str("path", hostCephConf).Msg("removing host ceph.conf failed, continuing")
		}
	}

	return e.Systemd.DaemonReload(ctx)
}

// zapOSD destroys ident's underlying LVM volume via a transient
// "ceph-volume lvm zap --osd-id <id> --destroy" container, the same one-shot
// helper container pattern pkg/bootstrap uses for ceph-authtool/monmaptool.
func (e *Engine) zapOSD(ctx context.Context, ident types.Identity) error {
	image := e.Host.ResolveImage()
	args := []string{
		e.Runtime.Binary, "run", "--rm", "--privileged", "--group-add=disk",
		"--entrypoint", "ceph-volume", image,
		"lvm", "zap", "--osd-id", ident.ID, "--destroy",
	}
	_, err := procexec.Run(ctx, 120*time.Second, nil, args[0], args[1:]...)
	return err
}

// removeSysctlFragments deletes every sysctl.d fragment this cluster's
// daemons wrote, matching the "90-cephadmd-<cluster>-<ident>.conf" naming
// DeployDaemon uses when a descriptor declares Sysctls.
func (e *Engine) removeSysctlFragments(clusterID string) error {
	pattern := filepath.Join(e.Host.SysctlDir, fmt.Sprintf("90-cephadmd-%s-*.conf", clusterID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, path := range matches {
		_ = os.Remove(path)
	}
	return nil
}

// adminKeyringPresent checks each mon data dir's keyring for a
// [client.admin] stanza, the parsed-presence check spec.md §9's open question
// resolves as "parse for the stanza, not just file existence" -- this gates
// the whole rm-cluster operation, and is independent of whether the host
// ceph.conf itself gets deleted (see hostCephConfReferencesCluster).
func (e *Engine) adminKeyringPresent(clusterID string) (bool, error) {
	pattern := filepath.Join(e.Host.DataDir, clusterID, "mon.*", "keyring")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return false, err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "[client.admin]") {
			return true, nil
		}
	}
	return false, nil
}

// hostCephConfReferencesCluster reports whether the host-wide /etc/ceph/ceph.conf
// carries clusterID as the value of its [global] fsid directive. spec.md §9's
// open question #2 deliberately narrows this from "the cluster id appears
// anywhere in the file, including in a comment" to a parsed config value,
// so a host-level ceph.conf that merely mentions the id in a comment is left
// alone.
func hostCephConfReferencesCluster(clusterID string) (bool, error) {
	return hostCephConfReferencesClusterAt(hostCephConf, clusterID)
}

// hostCephConfReferencesClusterAt is hostCephConfReferencesCluster with the
// file path broken out as a parameter, so tests can point it at a scratch
// file instead of the real /etc/ceph/ceph.conf.
func hostCephConfReferencesClusterAt(path, clusterID string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	inGlobal := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inGlobal = strings.EqualFold(line, "[global]")
			continue
		}
		if !inGlobal {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "fsid" && strings.TrimSpace(val) == clusterID {
			return true, nil
		}
	}
	return false, nil
}

// resolveMounts turns a descriptor's declared Mounts plus the caller's
// ExtraBinds into the []specs.Mount the composer renders as "-v" flags.
// "data" is the conventional source name for the daemon's own data dir
// (already bind-mounted via opt.DataDir elsewhere for most kinds, but mon
// names it explicitly since ceph-mon expects its store at a fixed path);
// any other source (such as iSCSI's "configfs") is passed through
// unchanged.
func resolveMounts(d *types.Descriptor, cfg *types.Config, daemonDir string) []specs.Mount {
	out := make([]specs.Mount, 0, len(d.Mounts)+len(cfg.ExtraBinds))
	for _, m := range d.Mounts {
		source := m.Source
		if source == "data" {
			source = daemonDir
		}
		out = append(out, specs.Mount{Source: source, Destination: m.Target, Options: mountOptions(m.ReadOnly)})
	}
	for _, b := range cfg.ExtraBinds {
		out = append(out, specs.Mount{Source: b.Source, Destination: b.Target, Options: mountOptions(b.ReadOnly)})
	}
	return out
}

func mountOptions(readOnly bool) []string {
	if readOnly {
		return []string{"ro"}
	}
	return []string{"rw"}
}

// agentUnitVectors builds the run/stop/remove vectors for the agent kind,
// which re-executes this same binary under its systemd unit instead of
// going through the composer (spec.md §4.7 step 7). KillMode=none in the
// unit template means systemd relies on unit.stop to actually end the
// process, since nothing else will.
func agentUnitVectors(daemonDir string) (types.RunVectors, error) {
	exe, err := os.Executable()
	if err != nil {
		return types.RunVectors{}, fmt.Errorf("locating own executable for the agent unit: %w", err)
	}
	configPath := filepath.Join(daemonDir, "config.json")
	keyringPath := filepath.Join(daemonDir, "keyring")
	run := []string{exe, "agent", "run", "--config", configPath, "--keyring", keyringPath}
	stop := []string{"pkill", "-TERM", "-f", exe + " agent run --config " + configPath}
	return types.RunVectors{Run: run, Stop: stop, Remove: []string{"true"}}, nil
}

// wrapKindSpecific adds the preamble/cleanup steps a handful of kinds need
// around the composer's plain run/stop/remove vectors: the monitor's
// one-time --mkfs, the object store's ceph-volume lvm activate/deactivate,
// and iSCSI's configfs mount plus TCMU sidecar (spec.md §4.7 step 6-7).
func (e *Engine) wrapKindSpecific(d *types.Descriptor, ident types.Identity, daemonDir, image string, vecs types.RunVectors, firstDeploy bool) (types.RunVectors, error) {
	rtBin := e.Runtime.Binary

	switch d.Kind {
	case types.KindMon:
		if !firstDeploy {
			return vecs, nil
		}
		storeDir := filepath.Join(daemonDir, "store.db")
		mkfs := []string{
			rtBin, "run", "--rm", "--net=host",
			"-v", daemonDir + ":/var/lib/ceph/mon:z",
			"--entrypoint", "ceph-mon", image,
			"--mkfs", "-i", ident.ID, "--mon-data", "/var/lib/ceph/mon",
		}
		preamble := append([]string{"test", "-d", storeDir, "||"}, mkfs...)
		vecs.Run = append(append(preamble, "&&"), vecs.Run...)
		return vecs, nil

	case types.KindOsd:
		activate := []string{
			rtBin, "run", "--rm", "--privileged", "--net=host",
			"--entrypoint", "ceph-volume", image,
			"lvm", "activate", "--no-systemd", ident.ID,
		}
		vecs.Run = append(append(activate, "||", "true", "&&"), vecs.Run...)
		deactivate := []string{
			rtBin, "run", "--rm", "--privileged", "--net=host",
			"--entrypoint", "ceph-volume", image,
			"lvm", "deactivate", ident.ID,
		}
		vecs.Remove = append(append(deactivate, "||", "true", "&&"), vecs.Remove...)
		return vecs, nil

	case types.KindISCSI:
		mountConfigfs := []string{"mountpoint", "-q", "/sys/kernel/config", "||",
			"mount", "-t", "configfs", "none", "/sys/kernel/config"}
		tcmuName := fmt.Sprintf("iscsi-%s-tcmu", ident.ID)
		startTCMU := []string{
			rtBin, "run", "-d", "--rm", "--privileged", "--net=host",
			"--name", tcmuName,
			"-v", daemonDir + ":/var/lib/ceph/iscsi:z",
			"--entrypoint", "tcmu-runner", image,
		}
		vecs.Run = append(append(append(mountConfigfs, "&&"), startTCMU...), append([]string{"&&"}, vecs.Run...)...)
		stopTCMU := []string{rtBin, "stop", tcmuName, "||", "true"}
		vecs.Stop = append(append(stopTCMU, "&&"), vecs.Stop...)
		return vecs, nil

	default:
		return vecs, nil
	}
}

func shellJoin(argv []string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for i, a := range argv {
		if i > 0 {
			b.WriteString(" ")
		}
		if a == "||" {
			b.WriteString("\\\n|| ")
			continue
		}
		b.WriteString(shellQuote(a))
	}
	b.WriteString("\n")
	return b.String()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	needsQuote := strings.ContainsAny(s, " \t\n\"'$`\\")
	if !needsQuote {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
