// Package registry is the closed lookup from types.Kind to its types.Descriptor:
// default image, required files, default ports, entrypoint, mounts/envs, and
// validation rules (spec.md §4.1). It is a pure table plus pure functions over
// that table, not a hierarchy of per-kind types — the inheritance-shaped
// descriptor set redesign flag from spec.md §9.
package registry

import (
	"fmt"
	"sort"

	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/types"
)

var table = map[types.Kind]*types.Descriptor{
	types.KindMon: {
		Kind:           types.KindMon,
		DefaultImage:   "quay.io/ceph/ceph:v18",
		RequiredFiles:  []string{"config", "keyring"},
		DefaultPorts:   []int{3300, 6789},
		Entrypoint:     "/usr/bin/ceph-mon",
		AdoptSupported: true,
		Mounts: []types.Mount{
			{Source: "data", Target: "/var/lib/ceph/mon"},
		},
	},
	types.KindMgr: {
		Kind:          types.KindMgr,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring"},
		DefaultPorts:  []int{8443, 8765, 9283},
		Entrypoint:    "/usr/bin/ceph-mgr",
	},
	types.KindMds: {
		Kind:          types.KindMds,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring"},
		Entrypoint:    "/usr/bin/ceph-mds",
	},
	types.KindOsd: {
		Kind:           types.KindOsd,
		DefaultImage:   "quay.io/ceph/ceph:v18",
		RequiredFiles:  []string{"config", "keyring"},
		Entrypoint:     "/usr/bin/ceph-osd",
		AdoptSupported: true,
		Sysctls: map[string]string{
			"fs.aio-max-nr": "1048576",
			"kernel.pid_max": "4194304",
		},
	},
	types.KindRgw: {
		Kind:          types.KindRgw,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring"},
		DefaultPorts:  []int{80},
		Entrypoint:    "/usr/bin/radosgw",
	},
	types.KindMirror: {
		Kind:          types.KindMirror,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring"},
		Entrypoint:    "/usr/bin/rbd-mirror",
	},
	types.KindCrash: {
		Kind:          types.KindCrash,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring"},
		Entrypoint:    "/usr/bin/ceph-crash",
	},
	types.KindNFS: {
		Kind:          types.KindNFS,
		DefaultImage:  "quay.io/ceph/nfs:v5",
		RequiredFiles: []string{"config", "keyring", "ganesha.conf"},
		DefaultPorts:  []int{2049},
		Entrypoint:    "/usr/bin/ganesha.nfsd",
	},
	types.KindISCSI: {
		Kind:          types.KindISCSI,
		DefaultImage:  "quay.io/ceph/ceph:v18",
		RequiredFiles: []string{"config", "keyring", "iscsi-gateway.cfg"},
		DefaultPorts:  []int{3260, 5000},
		Entrypoint:    "/usr/bin/rbd-target-api",
		Mounts: []types.Mount{
			{Source: "configfs", Target: "/sys/kernel/config"},
		},
	},
	types.KindHAProxy: {
		Kind:          types.KindHAProxy,
		DefaultImage:  "quay.io/ceph/haproxy:2.3",
		RequiredFiles: []string{"haproxy.cfg"},
		DefaultPorts:  []int{80, 443, 1967},
		Entrypoint:    "haproxy",
		Sysctls:       map[string]string{"net.ipv4.ip_forward": "1"},
	},
	types.KindKeepalived: {
		Kind:          types.KindKeepalived,
		DefaultImage:  "quay.io/ceph/keepalived:2.1.5",
		RequiredFiles: []string{"keepalived.conf"},
		Entrypoint:    "keepalived",
		Sysctls: map[string]string{
			"net.ipv4.ip_forward":        "1",
			"net.ipv4.ip_nonlocal_bind":  "1",
		},
	},
	types.KindSNMPGateway: {
		Kind:          types.KindSNMPGateway,
		DefaultImage:  "docker.io/maxwo/snmp-notifier:v1.2.1",
		RequiredFiles: []string{"snmp-gateway.conf"},
		DefaultPorts:  []int{9464},
		Entrypoint:    "/snmp-notifier",
	},
	types.KindPrometheus: {
		Kind:                    types.KindPrometheus,
		DefaultImage:            "quay.io/prometheus/prometheus:v2.51.0",
		RequiredFiles:           []string{"prometheus.yml"},
		RequiredConfigJSONArgs:  []string{"peers"},
		DefaultPorts:            []int{9095},
		Entrypoint:              "/bin/prometheus",
		FixedUID:                65534,
		FixedGID:                65534,
		HasFixedUID:             true,
	},
	types.KindGrafana: {
		Kind:          types.KindGrafana,
		DefaultImage:  "quay.io/ceph/grafana:10.4.0",
		RequiredFiles: []string{"grafana.ini", "provisioning/datasources/ceph-dashboard.yml"},
		DefaultPorts:  []int{3000},
		Entrypoint:    "/bin/grafana",
		FixedUID:      472,
		FixedGID:      472,
		HasFixedUID:   true,
	},
	types.KindAlertmanager: {
		Kind:                   types.KindAlertmanager,
		DefaultImage:           "quay.io/prometheus/alertmanager:v0.27.0",
		RequiredFiles:          []string{"alertmanager.yml"},
		RequiredConfigJSONArgs: []string{"peers"},
		DefaultPorts:           []int{9093, 9094},
		Entrypoint:             "/bin/alertmanager",
		FixedUID:               65534,
		FixedGID:               65534,
		HasFixedUID:            true,
	},
	types.KindNodeExporter: {
		Kind:         types.KindNodeExporter,
		DefaultImage: "quay.io/prometheus/node-exporter:v1.7.0",
		DefaultPorts: []int{9100},
		Entrypoint:   "/bin/node_exporter",
		FixedUID:     65534,
		FixedGID:     65534,
		HasFixedUID:  true,
	},
	types.KindLoki: {
		Kind:          types.KindLoki,
		DefaultImage:  "docker.io/grafana/loki:3.0.0",
		RequiredFiles: []string{"loki.yml"},
		DefaultPorts:  []int{3100},
		Entrypoint:    "/usr/bin/loki",
	},
	types.KindPromtail: {
		Kind:          types.KindPromtail,
		DefaultImage:  "docker.io/grafana/promtail:3.0.0",
		RequiredFiles: []string{"promtail.yml"},
		Entrypoint:    "/usr/bin/promtail",
	},
	types.KindContainer: {
		Kind:       types.KindContainer,
		Entrypoint: "",
	},
	types.KindAgent: {
		Kind:            types.KindAgent,
		RunsViaUnitOnly: true,
	},
}

// Lookup returns the descriptor for kind, or *errs.UnknownKind if kind is not
// in the closed set.
func Lookup(kind types.Kind) (*types.Descriptor, error) {
	d, ok := table[kind]
	if !ok {
		return nil, &errs.UnknownKind{Kind: string(kind)}
	}
	return d, nil
}

// Kinds returns every known kind, sorted, for `ls`/help output.
func Kinds() []types.Kind {
	out := make([]types.Kind, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks cfg against the descriptor's required files and, for the
// monitoring stack family, required config-json-args. It collects every
// failure rather than stopping at the first, per spec.md §4.1.
func Validate(kind types.Kind, cfg *types.Config) error {
	d, err := Lookup(kind)
	if err != nil {
		return err
	}

	var missing []string
	for _, f := range d.RequiredFiles {
		if cfg == nil || cfg.Files == nil {
			missing = append(missing, f)
			continue
		}
		if _, ok := cfg.Files[f]; !ok {
			missing = append(missing, f)
		}
	}

	if kind.IsMonitoring() {
		for _, a := range d.RequiredConfigJSONArgs {
			if cfg == nil || cfg.ConfigJSONArgs == nil {
				missing = append(missing, "config-json:"+a)
				continue
			}
			if _, ok := cfg.ConfigJSONArgs[a]; !ok {
				missing = append(missing, "config-json:"+a)
			}
		}
	}

	if len(missing) > 0 {
		return &errs.InvalidConfig{Which: missing}
	}
	return nil
}

// ExtraArgs computes the descriptor's extra entrypoint args for one daemon
// instance, returning nil when the kind declares none.
func ExtraArgs(kind types.Kind, ident types.Identity, cfg *types.Config) ([]string, error) {
	d, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	if d.ExtraArgs == nil {
		return nil, nil
	}
	return d.ExtraArgs(ident, cfg), nil
}

// ResolveUID reports whether kind uses a fixed uid/gid pair instead of
// image-stat discovery, and what it is.
func ResolveUID(kind types.Kind) (uid, gid int, fixed bool) {
	d, ok := table[kind]
	if !ok || !d.HasFixedUID {
		return 0, 0, false
	}
	return d.FixedUID, d.FixedGID, true
}

// String is a debug helper used by CLI --verbose output.
func String(kind types.Kind) string {
	d, err := Lookup(kind)
	if err != nil {
		return fmt.Sprintf("<unknown kind %q>", kind)
	}
	return fmt.Sprintf("%s(image=%s, ports=%v)", d.Kind, d.DefaultImage, d.DefaultPorts)
}
