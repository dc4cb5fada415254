// Package composer turns a daemon descriptor plus runtime context into the
// four ordered argument vectors (run, stop, remove, exec) spec.md §4.2
// describes. It has no side effects: every failure is deferred to whoever
// executes the produced command vector.
package composer

import (
	"fmt"
	"strconv"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/types"
)

// Names is the pair of container names the composer remembers for one
// daemon: the canonical (dash-substituted) name used for new `run`
// invocations, and the legacy (dot-preserving) name `stop`/`remove` also try,
// for daemons created before the dash substitution existed.
type Names struct {
	Canonical string
	Legacy    string
}

// ContainerNames computes both names for one daemon identity.
func ContainerNames(clusterID string, ident types.Identity) Names {
	legacy := fmt.Sprintf("svc-%s-%s", clusterID, ident.String())
	return Names{
		Canonical: strings.ReplaceAll(legacy, ".", "-"),
		Legacy:    legacy,
	}
}

// Flags are the caller-supplied options that steer the composed command.
type Flags struct {
	Init        bool
	Privileged  bool
	AllowPtrace bool
	NetHost     bool // true unless the descriptor overrides it
}

// Options bundles everything Compose needs beyond the descriptor itself.
type Options struct {
	Runtime   runtime.Runtime
	Image     string
	Ident     types.Identity
	ClusterID string
	DataDir   string // host path to this daemon's data dir
	Mounts    []specs.Mount
	Envs      map[string]string
	ExtraArgs []string
	Flags     Flags
}

// Compose produces the run/stop/remove/exec argument vectors for one daemon.
func Compose(d *types.Descriptor, opt Options) (types.RunVectors, error) {
	names := ContainerNames(opt.ClusterID, opt.Ident)

	run := []string{opt.Runtime.Binary, "run"}
	run = append(run, "--rm", "--ipc=host", "--stop-signal=SIGTERM")
	if opt.Flags.NetHost {
		run = append(run, "--net=host")
	}
	run = append(run, "--name", names.Canonical)
	run = append(run, "--hostname", names.Canonical)

	if opt.Flags.Init {
		run = append(run, "--init")
		run = append(run, "--env", "CEPH_CONTAINER_NONCE_PER_RUN=1")
	}

	if opt.Flags.Privileged {
		run = append(run, "--privileged", "--group-add=disk")
	} else if opt.Flags.AllowPtrace {
		run = append(run, "--cap-add=SYS_PTRACE")
	}

	detached := opt.Runtime.SupportsCgroupSplit()
	if detached {
		run = append(run, "--cgroups=split")
		run = append(run, "--conmon-pidfile", opt.DataDir+"/unit.pid")
		run = append(run, "--cidfile", opt.DataDir+"/unit.cid")
	}

	for _, m := range opt.Mounts {
		run = append(run, "-v", mountArg(m))
	}

	for k, v := range opt.Envs {
		run = append(run, "--env", k+"="+v)
	}

	run = append(run, opt.Image)
	if d.Entrypoint != "" {
		run = append(run, d.Entrypoint)
	}
	run = append(run, opt.ExtraArgs...)

	stop := stopVector(opt.Runtime.Binary, names)
	remove := removeVector(opt.Runtime.Binary, names)
	exec := []string{opt.Runtime.Binary, "exec", "-it", names.Canonical, "/bin/bash"}

	return types.RunVectors{Run: run, Stop: stop, Remove: remove, Exec: exec}, nil
}

// stopVector tries the canonical name then the legacy name, ignoring absence
// of either (spec.md §4.2: "remove/stop try both, in order, ignoring
// absence").
func stopVector(binary string, n Names) []string {
	return []string{binary, "stop", n.Canonical, "||", binary, "stop", n.Legacy, "||", "true"}
}

func removeVector(binary string, n Names) []string {
	return []string{binary, "rm", "-f", n.Canonical, "||", binary, "rm", "-f", n.Legacy, "||", "true"}
}

func mountArg(m specs.Mount) string {
	opts := "rw"
	for _, o := range m.Options {
		if o == "ro" {
			opts = "ro"
		}
	}
	return m.Source + ":" + m.Destination + ":" + opts
}

// StatHelper composes the transient one-shot container that discovers a
// uid/gid pair by stat-ing a path inside the image (spec.md §4.2). Callers
// try candidatePaths in order and report the first failing path as context
// if every candidate fails.
func StatHelper(rt runtime.Runtime, image, candidatePath string) []string {
	return []string{
		rt.Binary, "run", "--rm", "--entrypoint", "stat",
		image, "-c", "%u %g", candidatePath,
	}
}

// ParseUIDGID parses the "%u %g" output of a StatHelper invocation.
func ParseUIDGID(stdout string) (uid, gid int, err error) {
	fields := strings.Fields(strings.TrimSpace(stdout))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected stat output %q", stdout)
	}
	uid, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing uid from %q: %w", stdout, err)
	}
	gid, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing gid from %q: %w", stdout, err)
	}
	return uid, gid, nil
}
