package firewall

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpenPortsNoOpWhenFirewallCmdAbsent(t *testing.T) {
	m := New(zerolog.Nop())
	m.checked = true
	m.present = false

	err := m.OpenPorts(context.Background(), []PortSpec{{Port: 6789, Protocol: "tcp"}})
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func TestPortSpecArgDefaultsToTCP(t *testing.T) {
	p := PortSpec{Port: 3300}
	if p.arg() != "3300/tcp" {
		t.Fatalf("got %q", p.arg())
	}
	p.Protocol = "udp"
	if p.arg() != "3300/udp" {
		t.Fatalf("got %q", p.arg())
	}
}

func TestClosePortsNoOpOnEmptyList(t *testing.T) {
	m := New(zerolog.Nop())
	m.checked = true
	m.present = true
	if err := m.ClosePorts(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error on empty list, got %v", err)
	}
}
