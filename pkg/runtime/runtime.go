// Package runtime detects which container runtime CLI is in effect (the
// docker-compatible family or podman) and, for the docker family, whether its
// version is at or above the threshold the composer needs to know about
// (spec.md §4.2: --cgroups=split, detached pid/cid files, a forking unit).
package runtime

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cephadmd/cephadmd/pkg/procexec"
)

// Family identifies which runtime CLI produced this Runtime.
type Family string

const (
	FamilyDocker Family = "docker"
	FamilyPodman Family = "podman"
)

// cgroupSplitThreshold is the docker-family version at/above which the
// composer emits --cgroups=split and a forking unit (spec.md §4.2).
var cgroupSplitThreshold = Version{Major: 20, Minor: 10}

// Version is a dotted major.minor.patch runtime version.
type Version struct {
	Major, Minor, Patch int
}

// Less reports whether v is strictly older than other, comparing only
// major.minor (patch is ignored, matching the threshold check's granularity).
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Runtime names the configured container runtime binary and what the
// composer needs to know about it.
type Runtime struct {
	Binary  string
	Family  Family
	Version Version
}

// New builds a Runtime for binary ("docker" or "podman"), auto-detecting
// family from the binary name.
func New(binary string) Runtime {
	family := FamilyDocker
	if strings.Contains(binary, "podman") {
		family = FamilyPodman
	}
	return Runtime{Binary: binary, Family: family}
}

var versionRE = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// DetectVersion shells out to "<binary> version --format '{{.Server.Version}}'"
// for either runtime family, falling back to "<binary> --version" when that
// fails or prints nothing, and parses the first dotted version it finds in
// the output.
func DetectVersion(ctx context.Context, r *Runtime) error {
	res, err := procexec.Run(ctx, 10*time.Second, nil, r.Binary, "version", "--format", "{{.Server.Version}}")
	if err != nil || strings.TrimSpace(res.Stdout) == "" {
		res, err = procexec.Run(ctx, 10*time.Second, nil, r.Binary, "--version")
		if err != nil {
			return err
		}
	}
	m := versionRE.FindStringSubmatch(res.Stdout)
	if m == nil {
		return nil
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	r.Version = Version{Major: major, Minor: minor, Patch: patch}
	return nil
}

// SupportsCgroupSplit reports whether this runtime is the docker family at or
// above the version threshold that supports --cgroups=split (spec.md §4.2).
func (r Runtime) SupportsCgroupSplit() bool {
	if r.Family != FamilyDocker {
		return false
	}
	return !r.Version.Less(cgroupSplitThreshold)
}

// IsDockerFamily reports whether the systemd unit should gain the
// docker.service After= directive (spec.md §4.4).
func (r Runtime) IsDockerFamily() bool {
	return r.Family == FamilyDocker
}
