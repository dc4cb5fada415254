package agent

import "encoding/json"

// cephVolumeDevice is the subset of "ceph-volume inventory --format json"
// per-device output this agent cares about.
type cephVolumeDevice struct {
	Path      string `json:"path"`
	Available bool   `json:"available"`
	SysAPI    struct {
		Size int64 `json:"size"`
	} `json:"sys_api"`
}

// parseVolumeInventory decodes ceph-volume's JSON array into VolumeInfo.
func parseVolumeInventory(stdout string) ([]VolumeInfo, error) {
	if stdout == "" {
		return nil, nil
	}
	var devices []cephVolumeDevice
	if err := json.Unmarshal([]byte(stdout), &devices); err != nil {
		return nil, err
	}
	out := make([]VolumeInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, VolumeInfo{Path: d.Path, Available: d.Available, SizeBytes: d.SysAPI.Size})
	}
	return out, nil
}
