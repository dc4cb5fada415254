// Package systemd renders the three unit kinds spec.md §4.4 describes
// (per-daemon, per-cluster target, the global target) and wraps systemctl
// for enable/disable/start/stop/is-active/is-enabled, the way pkg/manager
// shells out to external tooling rather than linking against it directly.
package systemd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/cephadmd/cephadmd/pkg/procexec"
)

// unitTemplate is the template for one daemon's systemd unit. It wraps
// unit.run/unit.stop/unit.poststop rather than embedding their logic, so a
// redeploy that only rewrites those three files never needs a daemon-reload.
const unitTemplate = `[Unit]
Description=Ceph {{.Kind}}.{{.ID}} for {{.ClusterID}}
After=network-online.target{{if .DockerFamily}} docker.service{{end}}
Wants=network-online.target
PartOf=cluster-{{.ClusterID}}.target

[Service]
LimitNOFILE=1048576
LimitNPROC=1048576
EnvironmentFile=-/etc/environment
ExecStart={{.DataDir}}/unit.run
ExecStop=-{{.DataDir}}/unit.stop
ExecStopPost=-{{.DataDir}}/unit.poststop
KillMode=none
Restart=on-failure
RestartSec=10s
StartLimitInterval=30min
StartLimitBurst=5
{{if .Forking}}Type=forking
PIDFile={{.DataDir}}/unit.pid
TimeoutStartSec=200
{{else}}Type=simple
{{end}}
[Install]
WantedBy=cluster-{{.ClusterID}}.target
`

const clusterTargetTemplate = `[Unit]
Description=Ceph cluster {{.ClusterID}}
PartOf=global.target
Before=global.target

[Install]
WantedBy=global.target
`

const globalTargetTemplate = `[Unit]
Description=All Ceph clusters and services
`

// UnitParams fills unitTemplate for one daemon.
type UnitParams struct {
	ClusterID    string
	Kind         string
	ID           string
	DataDir      string
	DockerFamily bool
	Forking      bool // true when the runtime detaches (docker --cgroups=split)
}

// RenderDaemonUnit renders the systemd unit text for one daemon.
func RenderDaemonUnit(p UnitParams) (string, error) {
	return render("daemon-unit", unitTemplate, p)
}

// RenderClusterTarget renders the cluster-<id>.target unit.
func RenderClusterTarget(clusterID string) (string, error) {
	return render("cluster-target", clusterTargetTemplate, struct{ ClusterID string }{clusterID})
}

// RenderGlobalTarget renders the global.target unit, identical for every host.
func RenderGlobalTarget() (string, error) {
	return render("global-target", globalTargetTemplate, nil)
}

func render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}

// UnitName returns the systemd unit instance name for one daemon:
// "daemon-<cluster>@<kind>.<id>.service".
func UnitName(clusterID, kind, id string) string {
	return fmt.Sprintf("daemon-%s@%s.%s.service", clusterID, kind, id)
}

// ClusterTargetName returns "cluster-<id>.target".
func ClusterTargetName(clusterID string) string {
	return fmt.Sprintf("cluster-%s.target", clusterID)
}

// GlobalTargetName is the one target that pulls in every cluster on a host.
const GlobalTargetName = "global.target"

// Controller wraps the systemctl CLI.
type Controller struct{}

// NewController returns a systemctl-backed Controller.
func NewController() *Controller { return &Controller{} }

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	res, err := procexec.Run(ctx, 15*time.Second, nil, "systemctl", args...)
	return res.Stdout, err
}

// DaemonReload runs "systemctl daemon-reload". Callers batch this: one call
// after writing every changed unit file, never one per file.
func (c *Controller) DaemonReload(ctx context.Context) error {
	_, err := c.run(ctx, "daemon-reload")
	return err
}

// EnableNow enables and starts a unit.
func (c *Controller) EnableNow(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "enable", "--now", unit)
	return err
}

// DisableNow stops and disables a unit, tolerating "unit not loaded".
func (c *Controller) DisableNow(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "disable", "--now", unit)
	if err != nil && strings.Contains(err.Error(), "does not exist") {
		return nil
	}
	return err
}

// Start, Stop, Restart wrap the matching systemctl verbs.
func (c *Controller) Start(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "start", unit)
	return err
}

func (c *Controller) Stop(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "stop", unit)
	return err
}

func (c *Controller) Restart(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "restart", unit)
	return err
}

// IsActive reports whether systemctl is-active printed "active". A unit that
// doesn't exist reports false with no error, since systemctl exits non-zero
// for both "inactive" and "not found" and procexec.Run would otherwise
// surface a ProcessFailed for a perfectly normal state.
func (c *Controller) IsActive(ctx context.Context, unit string) bool {
	out, _ := c.run(ctx, "is-active", unit)
	return strings.TrimSpace(out) == "active"
}

// IsEnabled reports whether systemctl is-enabled printed "enabled".
func (c *Controller) IsEnabled(ctx context.Context, unit string) bool {
	out, _ := c.run(ctx, "is-enabled", unit)
	return strings.TrimSpace(out) == "enabled"
}

// ResetFailed clears a unit's failed state after a start-limit hit, the way
// an operator would run "systemctl reset-failed" before retrying a deploy.
func (c *Controller) ResetFailed(ctx context.Context, unit string) error {
	_, err := c.run(ctx, "reset-failed", unit)
	return err
}

// cgroupRoot is the unified cgroupv2 mount every supported distro uses.
const cgroupRoot = "/sys/fs/cgroup"

// cgroupSlicePath computes one daemon's cgroup directory under the slice
// systemd nests every cluster's units in. "-" inside a slice name is
// escaped to "\x2d" by systemd itself when it turns "svc-<cluster-id>" into
// "system-svc\x2d<cluster-id>.slice" -- this is systemd's unit-name
// escaping convention, not ours.
func cgroupSlicePath(clusterID, unit string) string {
	slice := fmt.Sprintf(`system-svc\x2d%s.slice`, clusterID)
	return filepath.Join(cgroupRoot, "system.slice", slice, unit)
}

// CleanupFailedCgroup removes a daemon's leftover cgroup directory after its
// unit failed to start. A cgroup that never tore down cleanly otherwise
// makes the next start attempt fail with "device or resource busy" even
// though nothing is actually running in it (spec.md §4.4).
func (c *Controller) CleanupFailedCgroup(clusterID, unit string) error {
	path := cgroupSlicePath(clusterID, unit)
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale cgroup %s: %w", path, err)
	}
	return nil
}
