// Package adopt discovers the cluster id of a legacy, package-installed
// object-store daemon when the caller doesn't supply one, by the fallback
// chain spec.md §4.7 names for adopt's step 1: online fsid file, then
// offline LVM tag scan, then offline simple-osd JSON. This package is the
// second link in that chain. Grounded on original_source's
// ceph_volume/objectstore/baseobjectstore.py, whose BaseObjectStore carries
// a `self.tags` map of the same `ceph.*`-prefixed LVM tag convention this
// scan reads back out.
package adopt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cephadmd/cephadmd/pkg/procexec"
)

// Tags is one logical volume's parsed ceph.* LVM tags.
type Tags map[string]string

// ClusterFSID returns the ceph.cluster_fsid tag, the value adopt needs to
// place a discovered OSD under the right cluster id.
func (t Tags) ClusterFSID() (string, bool) {
	v, ok := t["ceph.cluster_fsid"]
	return v, ok
}

// OSDID returns the ceph.osd_id tag.
func (t Tags) OSDID() (string, bool) {
	v, ok := t["ceph.osd_id"]
	return v, ok
}

// ScanDevice runs `lvs -o lv_tags --noheadings <device>` and parses the
// comma-separated `ceph.key=value` tag list ceph-volume writes onto every
// LV it creates, the offline fallback spec.md §4.7 names when no fsid file
// is reachable (the OSD isn't running, so there's no daemon to ask).
func ScanDevice(ctx context.Context, device string) (Tags, error) {
	res, err := procexec.Run(ctx, 15*time.Second, nil, "lvs", "-o", "lv_tags", "--noheadings", device)
	if err != nil {
		return nil, fmt.Errorf("lvs tag scan of %s: %w", device, err)
	}
	return parseTags(res.Stdout), nil
}

// ScanAllDevices enumerates every LV on the host via `lvs -o lv_path,lv_tags`
// and returns the first one carrying a ceph.cluster_fsid tag, used when the
// caller doesn't even know which block device the legacy OSD lives on.
func ScanAllDevices(ctx context.Context) (device string, tags Tags, err error) {
	res, err := procexec.Run(ctx, 15*time.Second, nil, "lvs", "--noheadings", "-o", "lv_path,lv_tags")
	if err != nil {
		return "", nil, fmt.Errorf("lvs full scan: %w", err)
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		path := strings.TrimSpace(fields[0])
		t := parseTags(fields[1])
		if _, ok := t.ClusterFSID(); ok {
			return path, t, nil
		}
	}
	return "", nil, fmt.Errorf("no logical volume carries a ceph.cluster_fsid tag")
}

// parseTags splits lvs's comma-separated "key1=val1,key2=val2" tag output
// into a Tags map, ignoring tags outside the ceph.* namespace.
func parseTags(raw string) Tags {
	t := make(Tags)
	for _, pair := range strings.Split(strings.TrimSpace(raw), ",") {
		pair = strings.TrimSpace(pair)
		if !strings.HasPrefix(pair, "ceph.") {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		t[k] = v
	}
	return t
}
