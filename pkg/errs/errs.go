// Package errs defines the typed error taxonomy every collaborator and the engine
// return, and the exit-code mapping the CLI entrypoint uses to turn them into the
// documented process exit codes (spec.md §7).
package errs

import (
	"errors"
	"fmt"
)

// InvalidArgs is a preflight validation failure: a bad cluster id, a malformed
// --name form, or a missing required flag combination.
type InvalidArgs struct {
	Reason string
}

func (e *InvalidArgs) Error() string { return "invalid args: " + e.Reason }

// UnknownKind is returned when a --name/--kind value isn't in the closed kind set.
type UnknownKind struct {
	Kind string
}

func (e *UnknownKind) Error() string { return fmt.Sprintf("unknown daemon kind %q", e.Kind) }

// AdoptUnsupported is returned when adopt is invoked for a kind that doesn't
// support it.
type AdoptUnsupported struct {
	Kind string
}

func (e *AdoptUnsupported) Error() string {
	return fmt.Sprintf("adopt is not supported for kind %q", e.Kind)
}

// InvalidConfig lists every missing required file or malformed field found while
// validating a daemon's structured config.
type InvalidConfig struct {
	Which []string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid config, missing/invalid: %v", e.Which)
}

// PortBusy is returned when a declared port is already bound on 0.0.0.0 or ::.
type PortBusy struct {
	Port int
}

func (e *PortBusy) Error() string { return fmt.Sprintf("port %d is already in use", e.Port) }

// LockTimeout is returned when the cluster lock could not be acquired within the
// caller's timeout.
type LockTimeout struct {
	Path string
}

func (e *LockTimeout) Error() string { return fmt.Sprintf("timed out acquiring lock %s", e.Path) }

// ProcessFailed wraps a non-timeout, non-zero subprocess exit.
type ProcessFailed struct {
	Cmd    string
	Stdout string
	Stderr string
	Code   int
}

func (e *ProcessFailed) Error() string {
	return fmt.Sprintf("command %q failed with code %d: %s", e.Cmd, e.Code, e.Stderr)
}

// ProcessTimeout is returned when a subprocess did not complete within its
// caller-supplied timeout.
type ProcessTimeout struct {
	Cmd  string
	Secs float64
}

func (e *ProcessTimeout) Error() string {
	return fmt.Sprintf("command %q timed out after %.1fs", e.Cmd, e.Secs)
}

// MissingData is returned when --reconfig is requested but the daemon's data dir
// does not exist.
type MissingData struct {
	Path string
}

func (e *MissingData) Error() string { return fmt.Sprintf("no data dir at %s to reconfigure", e.Path) }

// DangerousWithoutForce is returned when rm-daemon targets a dangerous kind
// without --force.
type DangerousWithoutForce struct {
	Kind string
}

func (e *DangerousWithoutForce) Error() string {
	return fmt.Sprintf("removing a %q daemon requires --force", e.Kind)
}

// ImageReleaseMismatch is returned by bootstrap's release guard.
type ImageReleaseMismatch struct {
	Image, Wanted, Got string
}

func (e *ImageReleaseMismatch) Error() string {
	return fmt.Sprintf("image %s is release %q, expected %q (use --allow-mismatched-release to override)",
		e.Image, e.Got, e.Wanted)
}

// NetworkInferFailure is returned when the monitor IP could not be matched to any
// local interface.
type NetworkInferFailure struct {
	IP string
}

func (e *NetworkInferFailure) Error() string {
	return fmt.Sprintf("could not find IP %s on any local interface", e.IP)
}

// ExitCode maps an error returned by the engine/bootstrap/agent to the process
// exit code documented in spec.md §7: 0 success, 1 handled error, 124 timeout.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var pt *ProcessTimeout
	if errors.As(err, &pt) {
		return 124
	}
	return 1
}
