package types

import "time"

// Kind identifies one member of the closed set of daemon kinds this tool knows how
// to deploy, adopt, and remove.
type Kind string

const (
	KindMon          Kind = "mon"
	KindMgr          Kind = "mgr"
	KindMds          Kind = "mds"
	KindOsd          Kind = "osd"
	KindRgw          Kind = "rgw"
	KindMirror       Kind = "mirror"
	KindCrash        Kind = "crash"
	KindNFS          Kind = "nfs"
	KindISCSI        Kind = "iscsi"
	KindHAProxy      Kind = "haproxy"
	KindKeepalived   Kind = "keepalived"
	KindSNMPGateway  Kind = "snmp-gateway"
	KindPrometheus   Kind = "prometheus"
	KindGrafana      Kind = "grafana"
	KindAlertmanager Kind = "alertmanager"
	KindNodeExporter Kind = "node-exporter"
	KindLoki         Kind = "loki"
	KindPromtail     Kind = "promtail"
	KindContainer    Kind = "container"
	KindAgent        Kind = "agent"
)

// monitoringKinds is the subset of Kind that belongs to the monitoring stack and
// shares the "config-json-args" validation rule.
var monitoringKinds = map[Kind]bool{
	KindPrometheus:   true,
	KindGrafana:      true,
	KindAlertmanager: true,
	KindNodeExporter: true,
	KindLoki:         true,
	KindPromtail:     true,
}

// IsMonitoring reports whether k belongs to the monitoring stack family.
func (k Kind) IsMonitoring() bool { return monitoringKinds[k] }

// dangerousKinds lose their data dir to a backup-rename on remove instead of a plain
// recursive delete, and require --force.
var dangerousKinds = map[Kind]bool{
	KindMon:        true,
	KindOsd:        true,
	KindPrometheus: true,
}

// IsDangerous reports whether removing a daemon of this kind requires --force and a
// backup rather than a recursive delete.
func (k Kind) IsDangerous() bool { return dangerousKinds[k] }

// Identity is the globally-unique-within-a-cluster pair that names one daemon.
type Identity struct {
	Kind Kind
	ID   string
}

// String renders the identity in the conventional "<kind>.<id>" form used for data
// dir names and unit instance names.
func (i Identity) String() string {
	return string(i.Kind) + "." + i.ID
}

// ServiceName is the systemd service instance name "daemon-<cluster>@<kind>.<id>".
func (i Identity) ServiceName(clusterID string) string {
	return "daemon-" + clusterID + "@" + i.String()
}

// Config is the structured, caller-supplied per-daemon configuration blob.
type Config struct {
	// Files to materialize under the daemon's data dir: relative (or absolute)
	// path -> file content.
	Files map[string]string

	// Args are free-form extra command-line arguments appended after the
	// descriptor's computed entrypoint arguments.
	Args []string

	// ConfigJSONArgs carries structured arguments for monitoring components,
	// e.g. the set of cluster peers for the alertmanager.
	ConfigJSONArgs map[string]any

	// Ports declared by the caller for this daemon instance.
	Ports []int

	// UID/GID override; zero means "resolve from the image or the kind's fixed
	// pair".
	UID int
	GID int

	UIDSet bool
	GIDSet bool

	Privileged  bool
	AllowPtrace bool

	// ExtraBinds are additional host:container bind mounts beyond the
	// descriptor's own mount set.
	ExtraBinds []Bind

	MemoryRequest int64
	MemoryLimit   int64

	MetaJSON map[string]any
}

// Bind is one host-path to container-path bind mount.
type Bind struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Mount is a volume mount the descriptor itself contributes (as opposed to a
// caller-supplied extra bind).
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Descriptor is the per-kind metadata the registry answers with.
type Descriptor struct {
	Kind Kind

	DefaultImage string

	// RequiredFiles are config file names that must be present in a Config's
	// Files map for this kind.
	RequiredFiles []string

	// RequiredConfigJSONArgs are keys that must be present in ConfigJSONArgs,
	// used by the monitoring stack family.
	RequiredConfigJSONArgs []string

	DefaultPorts []int

	// Entrypoint is the path inside the image the container runs.
	Entrypoint string

	// ExtraArgs computes additional entrypoint arguments from the structured
	// config; nil if the kind needs none.
	ExtraArgs func(ident Identity, cfg *Config) []string

	Mounts []Mount
	Envs   map[string]string

	// FixedUID/FixedGID are used instead of image-stat discovery for kinds
	// whose container always runs as a well-known user (the monitoring
	// stack).
	FixedUID    int
	FixedGID    int
	HasFixedUID bool

	// RunsViaUnitOnly is set for kinds deployed via a systemd unit alone,
	// bypassing the container command composer (the agent itself).
	RunsViaUnitOnly bool

	// Sysctls names the sysctl directives this kind requires, if any.
	Sysctls map[string]string

	// AdoptSupported reports whether `adopt` is implemented for this kind.
	AdoptSupported bool
}

// DaemonState is the observed lifecycle state of one daemon.
type DaemonState string

const (
	StateAbsent          DaemonState = "absent"
	StateDeployedStopped DaemonState = "deployed-stopped"
	StateDeployedRunning DaemonState = "deployed-running"
	StateDeployedFailed  DaemonState = "deployed-failed"
	StateRemovedBackup   DaemonState = "removed-backup"
)

// DeployFlags carries the caller-visible options to a deploy invocation (spec.md
// §6 `deploy` subcommand flags).
type DeployFlags struct {
	Reconfig      bool
	AllowPtrace   bool
	TCPPorts      []int
	MemoryRequest int64
	MemoryLimit   int64
}

// DaemonInfo summarizes one on-disk daemon for `ls` / the agent's listing gatherer.
type DaemonInfo struct {
	Identity      Identity
	ClusterID     string
	State         DaemonState
	Enabled       bool
	Image         string
	ContainerID   string
	MemoryUsageMB int64
	Created       time.Time
	Configured    time.Time
}

// RunVectors is the composer's output: the four ordered argv's needed to run,
// stop, remove, and exec into a daemon's container.
type RunVectors struct {
	Run    []string
	Stop   []string
	Remove []string
	Exec   []string
}
