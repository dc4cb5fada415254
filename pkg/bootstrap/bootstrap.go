// Package bootstrap runs the single-host cluster genesis sequence spec.md
// §4.8 describes: it derives ids, acquires the cluster lock, generates the
// first monitor and manager, assimilates and minimizes their config, enables
// the orchestrator and dashboard, and leaves behind a running two-daemon
// cluster plus an admin keyring. Grounded on pkg/manager.NewManager/
// Bootstrap's ordered setup-step style (each step wrapped in its own
// fmt.Errorf context) and pkg/security.CertAuthority.Initialize's
// generate-then-persist sequencing, translated from Raft/TLS setup to
// monitor/manager genesis.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadmd/cephadmd/pkg/clusterid"
	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/firewall"
	"github.com/cephadmd/cephadmd/pkg/layout"
	"github.com/cephadmd/cephadmd/pkg/lock"
	"github.com/cephadmd/cephadmd/pkg/procexec"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/security"
	"github.com/cephadmd/cephadmd/pkg/systemd"
	"github.com/cephadmd/cephadmd/pkg/types"
	"github.com/cephadmd/cephadmd/pkg/yamlspec"
)

// Options carries every bootstrap flag spec.md §6's `bootstrap` subcommand
// exposes.
type Options struct {
	MonIP                  string // bare IP, "ip:port", or address-vector string
	ClusterNetwork         string // CIDR, optional
	SkipPull               bool
	AllowMismatchedRelease bool
	SkipMonNetwork         bool
	SkipDashboard          bool
	SkipHostPrep           bool
	SSHUser                string
	SSHPublicKeyPath       string
	ApplySpecPath          string
	AllowOverwrite         bool
	ExpectedRelease        string
}

// Result is what Bootstrap reports on success.
type Result struct {
	ClusterID         string
	MonID             string
	MgrID             string
	AdminKeyring      string
	DashboardURL      string
	DashboardUser     string
	DashboardPassword string
}

// Bootstrap runs the full genesis sequence against one host.
func Bootstrap(ctx context.Context, host config.HostConfig, opt Options, log zerolog.Logger) (*Result, error) {
	if err := checkNotAlreadyBootstrapped(host, opt); err != nil {
		return nil, err
	}

	rt := runtime.New(resolveRuntimeBinary(host))
	if err := runtime.DetectVersion(ctx, &rt); err != nil {
		log.Warn().Err(err).Msg("could not detect runtime version, proceeding with defaults")
	}

	if !opt.SkipHostPrep {
		prepareHost(ctx, rt, log)
	}

	clusterID := clusterid.New()
	monID := hostShortName()
	mgrSuffix, err := randomLowercaseSuffix(6)
	if err != nil {
		return nil, fmt.Errorf("generating manager id suffix: %w", err)
	}
	mgrID := hostShortName() + mgrSuffix
	log = log.With().Str("cluster_id", clusterID).Logger()

	l := lock.New(host.LockDir, clusterID)
	if err := l.Acquire(30 * time.Second); err != nil {
		return nil, err
	}
	defer l.Release()

	monAddr, err := parseMonAddress(opt.MonIP, log)
	if err != nil {
		return nil, err
	}

	var clusterNet *net.IPNet
	if opt.ClusterNetwork != "" {
		_, cidr, err := net.ParseCIDR(opt.ClusterNetwork)
		if err != nil {
			return nil, fmt.Errorf("parsing --cluster-network %q: %w", opt.ClusterNetwork, err)
		}
		clusterNet = cidr
	}

	image := host.ResolveImage()
	if !opt.SkipPull {
		if err := pullImage(ctx, rt, image); err != nil {
			return nil, err
		}
		if err := checkReleaseMatch(ctx, rt, image, opt.ExpectedRelease, opt.AllowMismatchedRelease); err != nil {
			return nil, err
		}
	}

	eng := engine.New(host, rt, log)

	monKeyring, adminKeyring, err := generateKeyrings(ctx, rt, image)
	if err != nil {
		return nil, err
	}

	monmap, err := generateMonmap(ctx, rt, image, clusterID, monID, monAddr)
	if err != nil {
		return nil, err
	}

	monCfg := &types.Config{
		Files: map[string]string{
			"config":  renderCephConf(clusterID, monAddr, clusterNet),
			"keyring": monKeyring,
			"monmap":  monmap,
		},
	}
	monIdent := types.Identity{Kind: types.KindMon, ID: monID}
	if _, err := eng.DeployDaemon(ctx, clusterID, monIdent, monCfg, types.DeployFlags{}); err != nil {
		return nil, fmt.Errorf("deploying initial monitor: %w", err)
	}

	if err := waitForMonitor(ctx, eng, clusterID, monIdent, 60*time.Second); err != nil {
		return nil, err
	}

	if !opt.SkipMonNetwork {
		if err := assimilateAndMinimizeConfig(ctx, eng, rt, image, clusterID, monAddr, adminKeyring, monIdent); err != nil {
			log.Warn().Err(err).Msg("config assimilate/minimize failed, continuing with the rendered config")
		}
		if err := applyNetworkSettings(ctx, rt, image, clusterID, monAddr, adminKeyring, clusterNet, opt.MonIP); err != nil {
			log.Warn().Err(err).Msg("applying public/cluster network settings failed, continuing")
		}
	}

	mgrKeyring, err := generateDaemonKeyring(ctx, rt, image, "mgr."+mgrID, "mon 'allow profile mgr' osd 'allow *' mds 'allow *'")
	if err != nil {
		return nil, err
	}
	mgrCfg := &types.Config{
		Files: map[string]string{
			"config":  renderCephConf(clusterID, monAddr, clusterNet),
			"keyring": mgrKeyring,
		},
	}
	mgrIdent := types.Identity{Kind: types.KindMgr, ID: mgrID}
	if _, err := eng.DeployDaemon(ctx, clusterID, mgrIdent, mgrCfg, types.DeployFlags{}); err != nil {
		return nil, fmt.Errorf("deploying initial manager: %w", err)
	}
	if err := waitForMgrEpoch(ctx, rt, image, clusterID, monAddr, adminKeyring, 30*time.Second); err != nil {
		log.Warn().Err(err).Msg("manager epoch wait timed out, continuing")
	}

	if err := enableOrchestrator(ctx, rt, image, clusterID, monAddr, adminKeyring); err != nil {
		log.Warn().Err(err).Msg("enabling the cephadm orchestrator backend failed, continuing")
	}

	if opt.SSHPublicKeyPath != "" {
		if err := provisionSSHKey(opt.SSHUser, opt.SSHPublicKeyPath); err != nil {
			return nil, fmt.Errorf("provisioning ssh key: %w", err)
		}
	}

	dashboardURL := ""
	dashboardPassword := ""
	if !opt.SkipDashboard {
		dashboardURL, dashboardPassword, err = setupDashboard(ctx, host, rt, image, clusterID, monAddr, adminKeyring)
		if err != nil {
			log.Warn().Err(err).Msg("dashboard setup failed, continuing without it")
		}
	}

	if opt.ApplySpecPath != "" {
		if err := applySpec(ctx, eng, clusterID, opt.ApplySpecPath, log); err != nil {
			return nil, fmt.Errorf("applying spec file: %w", err)
		}
	}

	return &Result{
		ClusterID:         clusterID,
		MonID:             monID,
		MgrID:             mgrID,
		AdminKeyring:      adminKeyring,
		DashboardURL:      dashboardURL,
		DashboardUser:     "admin",
		DashboardPassword: dashboardPassword,
	}, nil
}

func checkNotAlreadyBootstrapped(host config.HostConfig, opt Options) error {
	if opt.AllowOverwrite {
		return nil
	}
	entries, err := os.ReadDir(host.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return &errs.InvalidArgs{Reason: fmt.Sprintf("%s is not empty; pass --allow-overwrite to bootstrap anyway", host.DataDir)}
	}
	return nil
}

func hostShortName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "host"
	}
	if i := strings.IndexByte(h, '.'); i > 0 {
		h = h[:i]
	}
	return h
}

// randomLowercaseSuffix returns n random lowercase ASCII letters, the
// manager id suffix spec.md §4.8 step 4 names ("hostname + 6 random
// lowercase letters"), the same crypto/rand source generateDashboardPassword
// uses for a short human-facing token.
func randomLowercaseSuffix(n int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

func resolveRuntimeBinary(host config.HostConfig) string {
	if host.Docker {
		return "docker"
	}
	return "podman"
}

// prepareHost performs the best-effort host-prep spec.md §4.8 step 2 names:
// confirm the container engine responds, lvm2 is installed, and chronyd is
// active. Every check is logged, not fatal: a host that's already prepared
// (the common re-bootstrap case) has nothing to fix here, and deeper
// remediation belongs to the standalone prepare-host path this tool only
// calls into, not to Bootstrap itself.
func prepareHost(ctx context.Context, rt runtime.Runtime, log zerolog.Logger) {
	if _, err := procexec.Run(ctx, 10*time.Second, nil, rt.Binary, "info"); err != nil {
		log.Warn().Err(err).Str("runtime", rt.Binary).Msg("host-prep: container engine not responding")
	}
	if _, err := procexec.Run(ctx, 10*time.Second, nil, "lvm", "version"); err != nil {
		log.Warn().Err(err).Msg("host-prep: lvm2 not available")
	}
	if _, err := procexec.Run(ctx, 10*time.Second, nil, "systemctl", "is-active", "chronyd"); err != nil {
		log.Warn().Msg("host-prep: chronyd not active, time sync may be unavailable")
	}
}

// parseMonAddress accepts a bare IP, "ip:port", or an address-vector string
// like "[v2:1.2.3.4:3300,v1:1.2.3.4:6789]". A bare IP expands to both the
// msgr2 and msgr1 defaults; an explicit port canonicalizes to the single
// messenger version that owns that well-known port (6789 -> v1, 3300 -> v2),
// and any other port is accepted as msgr2 with a warning, since there's no
// well-known mapping to infer from (spec.md §4.8).
func parseMonAddress(raw string, log zerolog.Logger) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &errs.InvalidArgs{Reason: "--mon-ip is required"}
	}
	if strings.HasPrefix(raw, "[v") {
		return raw, nil
	}
	if host, port, err := net.SplitHostPort(raw); err == nil {
		if net.ParseIP(host) == nil {
			return "", &errs.NetworkInferFailure{IP: raw}
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return "", &errs.InvalidArgs{Reason: fmt.Sprintf("bad port in %q", raw)}
		}
		switch p {
		case 6789:
			return fmt.Sprintf("[v1:%s:%d]", host, p), nil
		case 3300:
			return fmt.Sprintf("[v2:%s:%d]", host, p), nil
		default:
			log.Warn().Int("port", p).Msg("--mon-ip port is neither the msgr1 (6789) nor msgr2 (3300) default, assuming msgr2")
			return fmt.Sprintf("[v2:%s:%d]", host, p), nil
		}
	}
	if net.ParseIP(raw) == nil {
		return "", &errs.NetworkInferFailure{IP: raw}
	}
	return fmt.Sprintf("[v2:%s:3300,v1:%s:6789]", raw, raw), nil
}

func pullImage(ctx context.Context, rt runtime.Runtime, image string) error {
	_, err := procexec.RunWithRetry(ctx, 300*time.Second, nil, 3, 5*time.Second, rt.Binary, "pull", image)
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	return nil
}

func checkReleaseMatch(ctx context.Context, rt runtime.Runtime, image, expected string, allowMismatch bool) error {
	if expected == "" || allowMismatch {
		return nil
	}
	res, err := procexec.Run(ctx, 30*time.Second, nil, rt.Binary, "run", "--rm", "--entrypoint", "ceph", image, "--version")
	if err != nil {
		return fmt.Errorf("probing image release: %w", err)
	}
	if !strings.Contains(res.Stdout, expected) {
		return &errs.ImageReleaseMismatch{Image: image, Wanted: expected, Got: strings.TrimSpace(res.Stdout)}
	}
	return nil
}

func generateKeyrings(ctx context.Context, rt runtime.Runtime, image string) (monKeyring, adminKeyring string, err error) {
	monKeyring, err = generateDaemonKeyring(ctx, rt, image, "mon.", "allow *")
	if err != nil {
		return "", "", err
	}
	adminKeyring, err = generateDaemonKeyring(ctx, rt, image, "client.admin", "allow *")
	if err != nil {
		return "", "", err
	}
	return monKeyring, adminKeyring, nil
}

// generateDaemonKeyring runs a transient one-shot "ceph-authtool" container
// to generate a keyring for entity with the given capabilities.
func generateDaemonKeyring(ctx context.Context, rt runtime.Runtime, image, entity, caps string) (string, error) {
	args := []string{
		rt.Binary, "run", "--rm", "--entrypoint", "ceph-authtool",
		image, "--gen-key", "--name", entity,
		"--cap", "mon", caps,
	}
	res, err := procexec.Run(ctx, 30*time.Second, nil, args[0], args[1:]...)
	if err != nil {
		return "", fmt.Errorf("generating keyring for %s: %w", entity, err)
	}
	return res.Stdout, nil
}

// generateMonmap runs monmaptool in a transient container with a scratch
// host directory bind-mounted in, since monmaptool writes its output to a
// file rather than stdout.
func generateMonmap(ctx context.Context, rt runtime.Runtime, image, clusterID, monID, monAddr string) (string, error) {
	scratch, err := os.MkdirTemp("", "cephadmd-monmap-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	args := []string{
		rt.Binary, "run", "--rm",
		"-v", scratch + ":/scratch",
		"--entrypoint", "monmaptool",
		image, "--create", "--fsid", clusterID,
		"--add", monID, monAddr, "/scratch/monmap",
	}
	if _, err := procexec.Run(ctx, 30*time.Second, nil, args[0], args[1:]...); err != nil {
		return "", fmt.Errorf("generating monmap: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(scratch, "monmap"))
	if err != nil {
		return "", fmt.Errorf("reading generated monmap: %w", err)
	}
	return string(data), nil
}

func renderCephConf(clusterID, monAddr string, clusterNet *net.IPNet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[global]\nfsid = %s\nmon_host = %s\n", clusterID, monAddr)
	if clusterNet != nil {
		fmt.Fprintf(&b, "cluster_network = %s\n", clusterNet.String())
	}
	return b.String()
}

// waitForMonitor polls the engine's state classifier until the monitor
// reports deployed-running or the deadline elapses.
func waitForMonitor(ctx context.Context, eng *engine.Engine, clusterID string, ident types.Identity, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if eng.State(ctx, clusterID, ident) == types.StateDeployedRunning {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("monitor %s did not reach running state within %s", ident.String(), timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// runCephCmd runs a one-shot "ceph" CLI invocation against the freshly
// bootstrapped cluster in a transient container, the same scratch-dir
// bind-mount pattern generateMonmap uses for monmaptool: a throwaway
// ceph.conf/keyring pair is materialized on the host and bind-mounted in,
// never left behind once the container exits.
func runCephCmd(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string, args ...string) (string, error) {
	return runCephCmdWithFiles(ctx, rt, image, clusterID, monAddr, adminKeyring, nil, args...)
}

// runCephCmdWithFiles is runCephCmd plus extra scratch files (e.g. a
// one-time password) mounted alongside ceph.conf/keyring, for subcommands
// that read a value from a file with "-i" rather than accepting it as an
// argument (procexec has no stdin support to pipe it in directly).
func runCephCmdWithFiles(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string, extraFiles map[string]string, args ...string) (string, error) {
	scratch, err := os.MkdirTemp("", "cephadmd-ceph-cli-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	if err := os.WriteFile(filepath.Join(scratch, "ceph.conf"), []byte(renderCephConf(clusterID, monAddr, nil)), 0o600); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(scratch, "keyring"), []byte(adminKeyring), 0o600); err != nil {
		return "", err
	}
	for name, content := range extraFiles {
		if err := os.WriteFile(filepath.Join(scratch, name), []byte(content), 0o600); err != nil {
			return "", err
		}
	}

	runArgs := []string{
		rt.Binary, "run", "--rm", "--net=host",
		"-v", scratch + ":/scratch",
		"--entrypoint", "ceph", image,
		"--conf", "/scratch/ceph.conf", "--keyring", "/scratch/keyring",
		"--connect-timeout", "5",
	}
	runArgs = append(runArgs, args...)

	res, err := procexec.Run(ctx, 30*time.Second, nil, runArgs[0], runArgs[1:]...)
	if err != nil {
		return "", fmt.Errorf("ceph %s: %w", strings.Join(args, " "), err)
	}
	return res.Stdout, nil
}

// queryMgrEpoch asks "ceph mgr stat" for the manager map epoch, falling back
// to "ceph mgr dump" when stat doesn't carry it (spec.md §4.8 step 16).
func queryMgrEpoch(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string) (int, error) {
	out, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "mgr", "stat", "-f", "json")
	if err != nil || !strings.Contains(out, "epoch") {
		out, err = runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "mgr", "dump", "-f", "json")
		if err != nil {
			return 0, err
		}
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return 0, fmt.Errorf("parsing mgr epoch output: %w", err)
	}
	epoch, ok := doc["epoch"].(float64)
	if !ok {
		return 0, fmt.Errorf("mgr status carries no epoch field")
	}
	return int(epoch), nil
}

// waitForMgrEpoch polls "mgr stat"/"mgr dump" until the manager epoch
// advances past its value at the start of the wait, or timeout elapses
// (spec.md §4.8 step 16). An initial query failure is treated as baseline
// zero rather than aborting, since the manager may not have registered at
// all yet immediately after its unit starts.
func waitForMgrEpoch(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	baseline, err := queryMgrEpoch(ctx, rt, image, clusterID, monAddr, adminKeyring)
	if err != nil {
		baseline = 0
	}
	for {
		epoch, err := queryMgrEpoch(ctx, rt, image, clusterID, monAddr, adminKeyring)
		if err == nil && epoch > baseline {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("manager epoch did not advance past %d within %s", baseline, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// assimilateAndMinimizeConfig runs "ceph config assimilate-conf" against the
// rendered bootstrap config and "ceph config generate-minimal-conf" to
// produce the monitor's canonical on-disk config, writes it over the
// monitor's data-dir config file, and restarts the monitor unit so it picks
// the minimized config up (spec.md §4.8 step 14).
func assimilateAndMinimizeConfig(ctx context.Context, eng *engine.Engine, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string, monIdent types.Identity) error {
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "assimilate-conf", "-i", "/scratch/ceph.conf"); err != nil {
		return fmt.Errorf("assimilating config: %w", err)
	}
	minimal, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "generate-minimal-conf")
	if err != nil {
		return fmt.Errorf("generating minimal config: %w", err)
	}

	monDir := eng.Layout.DaemonDir(clusterID, monIdent.String())
	if err := layout.WriteFileAtomic(filepath.Join(monDir, "config"), []byte(minimal), 0o644, -1, -1); err != nil {
		return fmt.Errorf("writing minimized config: %w", err)
	}

	unitName := systemd.UnitName(clusterID, string(monIdent.Kind), monIdent.ID)
	return eng.Systemd.Restart(ctx, unitName)
}

// monIPIsIPv6 reports whether raw's host part (stripped of any port and
// brackets) parses as an IPv6 address, so applyNetworkSettings can pick the
// matching ms_bind_* flags.
func monIPIsIPv6(raw string) bool {
	raw = strings.TrimSpace(raw)
	host := raw
	if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}

// applyNetworkSettings pushes the public/cluster network CIDR and the
// matching ms_bind_ipv4/ms_bind_ipv6 flags into the central config store
// (spec.md §4.8 step 15), so daemons deployed after this point bind
// correctly without depending on cephadmd's own rendering of ceph.conf.
func applyNetworkSettings(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string, clusterNet *net.IPNet, monIP string) error {
	if clusterNet != nil {
		if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "set", "mon", "public_network", clusterNet.String()); err != nil {
			return fmt.Errorf("setting public_network: %w", err)
		}
		if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "set", "mon", "cluster_network", clusterNet.String()); err != nil {
			return fmt.Errorf("setting cluster_network: %w", err)
		}
	}

	bindKey, bindOther := "ms_bind_ipv4", "ms_bind_ipv6"
	if monIPIsIPv6(monIP) {
		bindKey, bindOther = "ms_bind_ipv6", "ms_bind_ipv4"
	}
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "set", "mon", bindKey, "true"); err != nil {
		return fmt.Errorf("setting %s: %w", bindKey, err)
	}
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "config", "set", "mon", bindOther, "false"); err != nil {
		return fmt.Errorf("setting %s: %w", bindOther, err)
	}
	return nil
}

// enableOrchestrator enables the cephadm mgr module and sets it as the
// active orchestrator backend, then re-waits for the manager epoch to
// advance past the restart the module enable triggers (spec.md §4.8 step 18).
func enableOrchestrator(ctx context.Context, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string) error {
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "mgr", "module", "enable", "cephadm"); err != nil {
		return fmt.Errorf("enabling orchestrator module: %w", err)
	}
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "orch", "set", "backend", "cephadm"); err != nil {
		return fmt.Errorf("setting orchestrator backend: %w", err)
	}
	return waitForMgrEpoch(ctx, rt, image, clusterID, monAddr, adminKeyring, 30*time.Second)
}

// provisionSSHKey appends pubKeyPath's contents to user's authorized_keys,
// skipping if the key is already present and ensuring the file ends with
// a newline before appending (spec.md §4.8's
// newline-hygienic append).
func provisionSSHKey(user, pubKeyPath string) error {
	if user == "" {
		user = "root"
	}
	home := "/root"
	if user != "root" {
		home = filepath.Join("/home", user)
	}
	return provisionSSHKeyAt(home, user, pubKeyPath)
}

// provisionSSHKeyAt does the actual append, parameterized on home so tests
// don't need to touch a real user's home directory.
func provisionSSHKeyAt(home, user, pubKeyPath string) error {
	key, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return err
	}
	keyLine := strings.TrimSpace(string(key))

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		return err
	}
	authPath := filepath.Join(sshDir, "authorized_keys")

	existing, err := os.ReadFile(authPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), keyLine) {
		return nil
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += keyLine + "\n"

	return os.WriteFile(authPath, []byte(content), 0o600)
}

// setupDashboard enables the dashboard mgr module, installs a self-signed
// certificate, opens the dashboard's firewall port, and creates the initial
// admin user with a generated one-time password, persisted at rest under
// the cluster data dir encrypted with a key derived from the cluster id
// (security.SecretsManager), mirroring how a freshly bootstrapped cluster
// hands the operator a one-time credential instead of a fixed default.
func setupDashboard(ctx context.Context, host config.HostConfig, rt runtime.Runtime, image, clusterID, monAddr, adminKeyring string) (url, password string, err error) {
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "mgr", "module", "enable", "dashboard"); err != nil {
		return "", "", fmt.Errorf("enabling dashboard module: %w", err)
	}
	if _, err := runCephCmd(ctx, rt, image, clusterID, monAddr, adminKeyring, "dashboard", "create-self-signed-cert"); err != nil {
		return "", "", fmt.Errorf("installing dashboard self-signed certificate: %w", err)
	}

	fw := firewall.New(zerolog.Nop())
	if err := fw.OpenPorts(ctx, []firewall.PortSpec{{Port: 8443, Protocol: "tcp"}}); err != nil {
		return "", "", err
	}

	password, err = generateDashboardPassword()
	if err != nil {
		return "", "", fmt.Errorf("generating dashboard password: %w", err)
	}

	if _, err := runCephCmdWithFiles(ctx, rt, image, clusterID, monAddr, adminKeyring,
		map[string]string{"dashboard-password": password},
		"dashboard", "ac-user-create", "admin", "-i", "/scratch/dashboard-password", "administrator"); err != nil {
		return "", "", fmt.Errorf("creating dashboard admin user: %w", err)
	}

	sm, err := security.NewSecretsManager(security.DeriveKeyFromClusterID(clusterID))
	if err != nil {
		return "", "", fmt.Errorf("building dashboard secrets manager: %w", err)
	}
	encrypted, err := sm.EncryptSecret([]byte(password))
	if err != nil {
		return "", "", fmt.Errorf("encrypting dashboard password: %w", err)
	}

	clusterDir := filepath.Join(host.DataDir, clusterID)
	if err := os.MkdirAll(clusterDir, 0o750); err != nil {
		return "", "", fmt.Errorf("creating cluster dir for dashboard password: %w", err)
	}
	passwordPath := filepath.Join(clusterDir, "dashboard.initial-admin-password.enc")
	if err := os.WriteFile(passwordPath, encrypted, 0o600); err != nil {
		return "", "", fmt.Errorf("writing dashboard password file: %w", err)
	}

	return fmt.Sprintf("https://%s:8443/", hostShortName()), password, nil
}

// generateDashboardPassword returns a 24-character hex password, enough
// entropy for a one-time credential the operator is expected to rotate.
func generateDashboardPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// applySpec parses specPath with the restricted --apply-spec grammar and
// deploys each entry it names. Unsupported/malformed entries abort the
// whole apply rather than deploying a partial spec.
func applySpec(ctx context.Context, eng *engine.Engine, clusterID, specPath string, log zerolog.Logger) error {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return err
	}
	entries, err := yamlspec.Parse(data)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ident := types.Identity{Kind: types.Kind(entry.ServiceType), ID: entry.ServiceID}
		cfg := &types.Config{Files: map[string]string{}}
		if len(entry.Extra) > 0 {
			cfg.ConfigJSONArgs = make(map[string]any, len(entry.Extra))
			for k, v := range entry.Extra {
				cfg.ConfigJSONArgs[k] = v
			}
		}
		if _, err := eng.DeployDaemon(ctx, clusterID, ident, cfg, types.DeployFlags{}); err != nil {
			return fmt.Errorf("applying spec entry %s: %w", ident.String(), err)
		}
		log.Info().Str("daemon", ident.String()).Msg("deployed from apply-spec")
	}
	return nil
}
