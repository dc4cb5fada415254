// Package firewall opens and closes host ports for daemons using
// firewall-cmd, the way pkg/network wraps iptables: shell out, check the
// exit code; no record of opened ports is kept between calls. Hosts
// without firewalld (firewall-cmd absent, or firewalld not running) are a
// deliberate no-op, matching spec.md §4.5's "never block deploy on an
// unmanaged firewall" rule.
package firewall

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadmd/cephadmd/pkg/procexec"
)

// Manager opens/closes ports through firewall-cmd, batching the reload that
// --permanent changes require into one call per batch.
type Manager struct {
	log     zerolog.Logger
	present bool
	checked bool
}

// New returns a Manager. Presence of firewall-cmd is probed lazily, on the
// first Open/Close call, so constructing one never shells out.
func New(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

func (m *Manager) ensureChecked(ctx context.Context) {
	if m.checked {
		return
	}
	m.checked = true
	_, err := procexec.Run(ctx, 5*time.Second, nil, "firewall-cmd", "--state")
	m.present = err == nil
	if !m.present {
		m.log.Debug().Msg("firewall-cmd absent or firewalld not running, skipping port management")
	}
}

// PortSpec is one port/protocol pair to open or close.
type PortSpec struct {
	Port     int
	Protocol string // "tcp" or "udp"
}

func (p PortSpec) arg() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%d/%s", p.Port, proto)
}

// OpenPorts adds each port to the public zone, permanently and for the
// running instance, then reloads once. Ports already open are a no-op per
// firewall-cmd's own idempotency; OpenPorts never errors on "ALREADY_ENABLED".
func (m *Manager) OpenPorts(ctx context.Context, ports []PortSpec) error {
	return m.mutatePorts(ctx, "--add-port", ports)
}

// ClosePorts removes each port from the public zone. Removing a port that
// isn't open is tolerated the same way.
func (m *Manager) ClosePorts(ctx context.Context, ports []PortSpec) error {
	return m.mutatePorts(ctx, "--remove-port", ports)
}

func (m *Manager) mutatePorts(ctx context.Context, verb string, ports []PortSpec) error {
	m.ensureChecked(ctx)
	if !m.present || len(ports) == 0 {
		return nil
	}

	changed := false
	for _, p := range ports {
		for _, scope := range []string{"--permanent", ""} {
			args := []string{"--zone=public", verb + "=" + p.arg()}
			if scope != "" {
				args = append([]string{scope}, args...)
			}
			if _, err := procexec.Run(ctx, 10*time.Second, nil, "firewall-cmd", args...); err != nil {
				return fmt.Errorf("firewall-cmd %v: %w", args, err)
			}
		}
		changed = true
	}

	if changed {
		if _, err := procexec.Run(ctx, 10*time.Second, nil, "firewall-cmd", "--reload"); err != nil {
			return fmt.Errorf("firewall-cmd --reload: %w", err)
		}
	}
	return nil
}

// AddServiceDaemonForward enables the "ceph" predefined service definition
// in firewalld, for distros that ship one, instead of enumerating every
// daemon kind's ports individually. Absence of the service definition is
// tolerated: callers fall back to per-port OpenPorts.
func (m *Manager) AddServiceDaemonForward(ctx context.Context, service string) error {
	m.ensureChecked(ctx)
	if !m.present {
		return nil
	}
	if _, err := procexec.Run(ctx, 10*time.Second, nil, "firewall-cmd", "--permanent", "--zone=public", "--add-service="+service); err != nil {
		m.log.Debug().Str("service", service).Msg("firewalld service definition not found, caller should fall back to ports")
		return nil
	}
	_, err := procexec.Run(ctx, 10*time.Second, nil, "firewall-cmd", "--reload")
	return err
}
