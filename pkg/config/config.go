// Package config holds the process-wide host configuration record: an immutable
// snapshot parsed once from CLI flags and environment, plus a small mutable
// runtime handle for state discovered while a command runs. This realizes the
// "context object" redesign flag from spec.md §9 as an explicit value passed by
// the caller instead of a package-level global, mirroring the split the teacher
// draws between worker.Config (immutable) and Worker (mutable) in pkg/worker.
package config

import (
	"os"

	"github.com/cephadmd/cephadmd/pkg/lock"
)

const (
	// ImageEnv overrides --image when set.
	ImageEnv = "CEPHADM_IMAGE"
	// OSDSpecAffinityEnv is forwarded into the environment of spawned containers.
	OSDSpecAffinityEnv = "OSDSPEC_AFFINITY"
)

// HostConfig is parsed once at process start and never mutated afterward.
type HostConfig struct {
	Image          string
	Docker         bool
	DataDir        string
	LogDir         string
	LogrotateDir   string
	SysctlDir      string
	UnitDir        string
	LockDir        string
	Verbose        bool
	Timeout        float64
	Retries        int
	Env            []string
	NoContainerInit bool
}

// DefaultHostConfig returns the conventional Linux locations spec.md's glossary
// names as defaults, overridable by CLI flags.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Image:        "quay.io/ceph/ceph:v18",
		DataDir:      "/var/lib/cephadmd",
		LogDir:       "/var/log/cephadmd",
		LogrotateDir: "/etc/logrotate.d",
		SysctlDir:    "/etc/sysctl.d",
		UnitDir:      "/etc/systemd/system",
		LockDir:      "/run/cephadmd",
		Timeout:      600,
		Retries:      5,
	}
}

// ResolveImage applies the ImageEnv override over an explicit --image flag.
func (c HostConfig) ResolveImage() string {
	if v := os.Getenv(ImageEnv); v != "" {
		return v
	}
	return c.Image
}

// Runtime is the small mutable handle discovered or acquired while one command
// executes: the held cluster lock (if any) and the uid/gid resolved for the
// current daemon.
type Runtime struct {
	Lock *lock.ClusterLock
	UID  int
	GID  int
}
